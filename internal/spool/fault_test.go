package spool

import (
	"errors"
	"os"
	"sync/atomic"
	"syscall"

	"github.com/spf13/afero"
)

// faultFs wraps an afero.Fs and injects failures.
type faultFs struct {
	afero.Fs
	failStat  map[string]bool
	failWrite bool
}

func (f *faultFs) Stat(name string) (os.FileInfo, error) {
	if f.failStat[name] {
		return nil, &os.PathError{Op: "stat", Path: name, Err: syscall.EIO}
	}
	return f.Fs.Stat(name)
}

func (f *faultFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil || !f.failWrite {
		return file, err
	}
	return &halfWriteFile{File: file}, nil
}

// halfWriteFile writes half of each buffer and then reports an error.
type halfWriteFile struct {
	afero.File
}

func (h *halfWriteFile) Write(p []byte) (int, error) {
	n, _ := h.File.Write(p[:len(p)/2])
	return n, errors.New("no space left on device")
}

// sequence returns a Generator that hands out ids in order and then
// repeats the last one.
func sequence(ids ...string) (Generator, *int32) {
	var calls int32
	return GeneratorFunc(func() Identifier {
		n := atomic.AddInt32(&calls, 1)
		i := int(n) - 1
		if i >= len(ids) {
			i = len(ids) - 1
		}
		return Identifier(ids[i])
	}), &calls
}
