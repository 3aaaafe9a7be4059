package tarfs

import (
	"archive/tar"
	"io"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/namhoon-kim97/pintos-kaist/fs"
	"github.com/namhoon-kim97/pintos-kaist/fs/memfs"
	"github.com/namhoon-kim97/pintos-kaist/log"
)

type entry struct {
	hdr   *tar.Header
	inode *fs.Inode
}

func (e *entry) String() string {
	return spew.Sdump(e.hdr, e.inode.StableAttr)
}

// TarFS is a memfs populated from a tar archive. Once loaded it is an
// ordinary mutable in-memory filesystem.
type TarFS struct {
	*memfs.MemFS
}

func findParent(m *memfs.MemFS, root *memfs.Dir, name string) (*memfs.Dir, error) {
	dirName := filepath.Dir(name)

	if dirName == "" || dirName == "." {
		return root, nil
	}

	parts := strings.Split(dirName, "/")

	parent := root

	for _, sec := range parts {
		ch, ok := parent.Children[sec]
		if !ok {
			ch = m.NewDir(parent.Unstable.ModificationTime)
			parent.AddChild(sec, ch)
		}

		dir, ok := ch.Ops.(*memfs.Dir)
		if !ok {
			return nil, fs.ErrNotDirectory
		}

		parent = dir
	}

	return parent, nil
}

func NewTarFS(r io.Reader) (*TarFS, error) {
	tr := tar.NewReader(r)

	m := memfs.New()

	rootInode, err := m.Root()
	if err != nil {
		return nil, err
	}

	root := rootInode.Ops.(*memfs.Dir)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		name := hdr.Name

		if len(name) > 2 && name[:2] == "./" {
			name = name[2:]
		}

		if len(name) >= 1 && name[0] == '/' {
			name = name[1:]
		}

		name = strings.TrimSuffix(name, "/")

		// root!
		if name == "" || name == "." {
			continue
		}

		var inode *fs.Inode

		switch hdr.Typeflag {
		case tar.TypeDir:
			parent, err := findParent(m, root, name)
			if err != nil {
				return nil, err
			}

			if _, ok := parent.Children[filepath.Base(name)]; ok {
				continue
			}

			inode = m.NewDir(hdr.ModTime)
			parent.AddChild(filepath.Base(name), inode)
		case tar.TypeReg:
			data, err := ioutil.ReadAll(tr)
			if err != nil {
				return nil, err
			}

			parent, err := findParent(m, root, name)
			if err != nil {
				return nil, err
			}

			inode = m.NewFile(data, hdr.ModTime)
			parent.AddChild(filepath.Base(name), inode)
		default:
			log.L.Debug("tarfs skipping entry", "name", hdr.Name, "type", hdr.Typeflag)
			continue
		}

		log.L.Trace("tarfs entry", "entry", (&entry{hdr: hdr, inode: inode}).String())
	}

	return &TarFS{MemFS: m}, nil
}

// Namespace returns a mount namespace rooted at the archive root.
func (t *TarFS) Namespace() (*fs.MountNamespace, error) {
	root, err := t.Root()
	if err != nil {
		return nil, err
	}

	ns := fs.NewMountNamespace()
	ns.SetRoot(root)

	return ns, nil
}
