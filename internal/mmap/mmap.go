// Package mmap provides read-only memory mappings for snapshot files.
// On platforms without mmap support the file is read into memory instead;
// the Mapping contract is identical either way.
package mmap

import "os"

// Mapping is a read-only view of a file's contents.
type Mapping struct {
	data   []byte
	mapped bool
}

// Open maps the named file read-only.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return &Mapping{}, nil
	}

	return openFile(f, int(fi.Size()))
}

// Bytes returns the mapped contents. The slice is valid until Close and
// must be treated as read-only.
func (m *Mapping) Bytes() []byte { return m.data }

// Close releases the mapping.
func (m *Mapping) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	if m.mapped {
		return unmap(data)
	}
	return nil
}
