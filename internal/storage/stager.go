// Package storage stages files received from the browser on local disk until
// they are uploaded or replaced.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/docchat/client/internal/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown staged file IDs.
var ErrNotFound = errors.New("staged file not found")

// ErrTooLarge is returned when a staged file exceeds the configured limit.
var ErrTooLarge = errors.New("file exceeds staging limit")

// Stager keeps staged files in a single directory, one file per ID.
type Stager struct {
	mu       sync.RWMutex
	dir      string
	maxBytes int64
	files    map[string]*models.FileInfo
}

// NewStager creates the staging directory if needed. maxBytes <= 0 disables
// the size limit.
func NewStager(dir string, maxBytes int64) (*Stager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	return &Stager{
		dir:      dir,
		maxBytes: maxBytes,
		files:    make(map[string]*models.FileInfo),
	}, nil
}

// Stage copies r to disk under a fresh ID.
func (s *Stager) Stage(name string, r io.Reader) (*StagedFile, error) {
	id := uuid.New().String()
	path := filepath.Join(s.dir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	size, err := io.Copy(f, src)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		os.Remove(path)
		return nil, fmt.Errorf("%s: %w (%d bytes)", name, ErrTooLarge, s.maxBytes)
	}

	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       size,
		SelectedAt: time.Now(),
	}

	s.mu.Lock()
	s.files[id] = info
	s.mu.Unlock()

	return &StagedFile{stager: s, info: *info, path: path}, nil
}

// Get retrieves staged file metadata by ID.
func (s *Stager) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := *info
	return &out, nil
}

// List returns the most recently staged files.
func (s *Stager) List(limit int) []models.FileInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, *info)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].SelectedAt.After(list[j].SelectedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

// Remove deletes a staged file.
func (s *Stager) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	path := filepath.Join(s.dir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}
	delete(s.files, id)
	return nil
}

// Clear removes every staged file.
func (s *Stager) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for id := range s.files {
		if err := os.Remove(filepath.Join(s.dir, id)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		delete(s.files, id)
	}
	return errors.Join(errs...)
}

// StagedFile is a file held in the staging directory. It satisfies
// upload.File; Release removes it from disk.
type StagedFile struct {
	stager *Stager
	info   models.FileInfo
	path   string
}

func (f *StagedFile) Name() string { return f.info.Name }
func (f *StagedFile) Size() int64  { return f.info.Size }

// Info returns the staged file's metadata.
func (f *StagedFile) Info() models.FileInfo { return f.info }

// Open reads the staged copy.
func (f *StagedFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// Release deletes the staged copy. Releasing twice is harmless.
func (f *StagedFile) Release() error {
	err := f.stager.Remove(f.info.ID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
