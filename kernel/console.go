package kernel

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// Console is the terminal behind the console streams. Output is written
// whole under one lock so lines from different processes never interleave.
type Console struct {
	inMu sync.Mutex
	in   *bufio.Reader

	outMu sync.Mutex
	out   io.Writer
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	if in == nil {
		in = eofReader{}
	}

	if out == nil {
		out = io.Discard
	}

	return &Console{
		in:  bufio.NewReader(in),
		out: out,
	}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) {
	return 0, io.EOF
}

// Getc returns the next input byte, false once input is exhausted.
func (c *Console) Getc() (byte, bool) {
	c.inMu.Lock()
	defer c.inMu.Unlock()

	b, err := c.in.ReadByte()
	if err != nil {
		return 0, false
	}

	return b, true
}

// Read fills p one byte at a time and returns how many bytes arrived
// before input ran out.
func (c *Console) Read(p []byte) int {
	c.inMu.Lock()
	defer c.inMu.Unlock()

	for i := range p {
		b, err := c.in.ReadByte()
		if err != nil {
			return i
		}

		p[i] = b
	}

	return len(p)
}

func (c *Console) Putbuf(p []byte) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	c.out.Write(p)
}

func (c *Console) Printf(format string, args ...interface{}) {
	c.Putbuf([]byte(fmt.Sprintf(format, args...)))
}
