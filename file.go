package onering

import (
	"fmt"
	"os"
	"sync"

	"github.com/oneringio/onering/ops"
	"github.com/oneringio/onering/sched"
)

// File is an open file driven through io_uring reads/writes/close.
type File struct {
	fd int

	closeOnce sync.Once
	closeErr  error
}

// OpenFile opens path according to mode, a string built from the characters
// {r,w,c,a}: r=read, w=write, rw=read+write, c=create (permissions 0660),
// a=append. At least one of r/w is required.
func OpenFile(y *sched.Yield, path string, mode string) (*File, error) {
	flags, err := parseFileMode(mode)
	if err != nil {
		return nil, err
	}
	res, err := y.DoIO(&ops.FileOpen{Path: path, Flags: flags, Mode: 0o660})
	if err != nil {
		return nil, err
	}
	return &File{fd: res.(ops.FDResult).FD}, nil
}

func parseFileMode(mode string) (int, error) {
	var read, write, create, appendMode bool
	for _, c := range mode {
		switch c {
		case 'r':
			read = true
		case 'w':
			write = true
		case 'c':
			create = true
		case 'a':
			appendMode = true
		default:
			return 0, fmt.Errorf("onering: invalid file mode %q", mode)
		}
	}
	var flags int
	switch {
	case read && write:
		flags = os.O_RDWR
	case write:
		flags = os.O_WRONLY
	case read:
		flags = os.O_RDONLY
	default:
		return 0, fmt.Errorf("onering: file mode %q must include r or w", mode)
	}
	if create {
		flags |= os.O_CREAT
	}
	if appendMode {
		flags |= os.O_APPEND
	}
	return flags, nil
}

// FD returns the underlying file descriptor.
func (f *File) FD() int { return f.fd }

// Read reads at most size bytes starting at offset. If size <= 0, the
// file's current length is stat'd synchronously first and size is resolved
// to "everything from offset to EOF" — the documented cost of an unsized
// read (one blocking syscall) rather than a second completion round-trip.
func (f *File) Read(y *sched.Yield, offset int64, size int) ([]byte, error) {
	if size <= 0 {
		total, err := ops.StatSizeFd(f.fd)
		if err != nil {
			return nil, err
		}
		size = int(total - offset)
		if size < 0 {
			size = 0
		}
	}
	if size == 0 {
		return nil, nil
	}
	op := &ops.FileRead{FD: f.fd, Offset: offset, Size: size}
	res, err := y.DoIO(op)
	if err != nil {
		return nil, err
	}
	br := res.(ops.BytesResult)
	out := append([]byte(nil), br.Buf[:br.N]...)
	op.Release()
	return out, nil
}

// Write writes all of data at offset, looping over short writes.
func (f *File) Write(y *sched.Yield, offset int64, data []byte) (int, error) {
	total := 0
	for total < len(data) {
		res, err := y.DoIO(&ops.FileWrite{FD: f.fd, Offset: offset + int64(total), Data: data[total:]})
		if err != nil {
			return total, err
		}
		ir := res.(ops.IntResult)
		if ir.N <= 0 {
			return total, fmt.Errorf("onering: write made no progress")
		}
		total += ir.N
	}
	return total, nil
}

// Close closes the file. Safe to call more than once; only the first call
// does anything.
func (f *File) Close(y *sched.Yield) error {
	f.closeOnce.Do(func() {
		_, f.closeErr = y.DoIO(&ops.FileClose{FD: f.fd})
	})
	return f.closeErr
}
