package fs

type Dirent struct {
	Name   string
	Parent *Dirent
	Inode  *Inode
}

// Path rebuilds the absolute path of the entry from its parents.
func (d *Dirent) Path() string {
	if d.Parent == nil {
		return "/"
	}

	parent := d.Parent.Path()
	if parent == "/" {
		return "/" + d.Name
	}

	return parent + "/" + d.Name
}
