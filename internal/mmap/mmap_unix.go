//go:build unix

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

func openFile(f *os.File, size int) (*Mapping, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data, mapped: true}, nil
}

func unmap(data []byte) error {
	return unix.Munmap(data)
}
