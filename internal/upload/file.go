package upload

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is a candidate upload. Implementations must allow Open to be called
// more than once so a failed transfer can be retried.
type File interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// releaser is implemented by files that own temporary storage, such as
// staged browser uploads.
type releaser interface {
	Release() error
}

type localFile struct {
	name string
	path string
	size int64
}

// OpenLocal returns a File backed by a regular file on disk.
func OpenLocal(path string) (File, error) {
	return NewLocalFile(filepath.Base(path), path)
}

// NewLocalFile returns a File whose display name differs from its path.
func NewLocalFile(name, path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &localFile{name: name, path: path, size: info.Size()}, nil
}

func (f *localFile) Name() string { return f.name }
func (f *localFile) Size() int64  { return f.size }

func (f *localFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

type bytesFile struct {
	name string
	data []byte
}

// BytesFile returns an in-memory File.
func BytesFile(name string, data []byte) File {
	return &bytesFile{name: name, data: data}
}

func (f *bytesFile) Name() string { return f.name }
func (f *bytesFile) Size() int64  { return int64(len(f.data)) }

func (f *bytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}
