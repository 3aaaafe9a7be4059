package loader

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var (
	Magic = [4]byte{'U', 'P', 'R', 'G'}

	ErrBadImage = errors.New("not a program image")
)

const Version = 1

// maxEntryName bounds the entry symbol an image may carry.
const maxEntryName = 256

type header struct {
	Magic    [4]byte
	Version  uint16
	EntryLen uint16
}

// Program is a parsed image: the registered entry it runs and the bytes of
// its initialized data segment.
type Program struct {
	Version uint16
	Entry   string
	Data    []byte

	// Raw is the whole image file, mapped read-only as the code segment.
	Raw []byte
}

// Build encodes an image that runs entry with data as its initialized data.
func Build(entry string, data []byte) []byte {
	var buf bytes.Buffer

	binary.Write(&buf, binary.LittleEndian, header{
		Magic:    Magic,
		Version:  Version,
		EntryLen: uint16(len(entry)),
	})

	buf.WriteString(entry)

	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)

	return buf.Bytes()
}

func Parse(raw []byte) (*Program, error) {
	r := bytes.NewReader(raw)

	var hdr header

	err := binary.Read(r, binary.LittleEndian, &hdr)
	if err != nil {
		return nil, errors.Wrap(ErrBadImage, "short header")
	}

	if hdr.Magic != Magic {
		return nil, errors.Wrapf(ErrBadImage, "magic %q", hdr.Magic[:])
	}

	if hdr.Version != Version {
		return nil, errors.Wrapf(ErrBadImage, "version %d", hdr.Version)
	}

	if hdr.EntryLen == 0 || hdr.EntryLen > maxEntryName {
		return nil, errors.Wrapf(ErrBadImage, "entry name length %d", hdr.EntryLen)
	}

	entry := make([]byte, hdr.EntryLen)

	_, err = io.ReadFull(r, entry)
	if err != nil {
		return nil, errors.Wrap(ErrBadImage, "short entry name")
	}

	var dataLen uint32

	err = binary.Read(r, binary.LittleEndian, &dataLen)
	if err != nil {
		return nil, errors.Wrap(ErrBadImage, "short data length")
	}

	if int64(dataLen) > int64(r.Len()) {
		return nil, errors.Wrapf(ErrBadImage, "data length %d exceeds image", dataLen)
	}

	data := make([]byte, dataLen)

	_, err = io.ReadFull(r, data)
	if err != nil {
		return nil, errors.Wrap(ErrBadImage, "short data")
	}

	return &Program{
		Version: hdr.Version,
		Entry:   string(entry),
		Data:    data,
		Raw:     raw,
	}, nil
}
