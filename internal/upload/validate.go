package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/docchat/client/internal/models"
	"github.com/google/uuid"
)

// User-facing reasons surfaced through the session's validation error.
const (
	ReasonNoFile = "Please upload a PDF file."
	ReasonNotPDF = "Only PDF files are allowed"
)

var (
	ErrNoFile = errors.New("no file")
	ErrNotPDF = errors.New("not a pdf file")
)

// pdfMagic is the header every PDF starts with.
var pdfMagic = []byte("%PDF-")

// RejectionError is returned by the validation gate.
type RejectionError struct {
	Name   string
	Reason string
	Err    error
}

func (e *RejectionError) Error() string {
	if e.Name == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// Validator accepts or rejects candidate files before any network activity.
// The extension check is always applied; SniffContent additionally requires
// the PDF header bytes.
type Validator struct {
	SniffContent bool
}

// Validate accepts f when its extension is "pdf", case-insensitively.
func Validate(f File) (*models.FileInfo, error) {
	return Validator{}.Validate(f)
}

// Validate checks f and returns the metadata of the accepted file.
func (v Validator) Validate(f File) (*models.FileInfo, error) {
	if f == nil {
		return nil, &RejectionError{Reason: ReasonNoFile, Err: ErrNoFile}
	}

	name := f.Name()
	if Extension(name) != "pdf" {
		return nil, &RejectionError{Name: name, Reason: ReasonNotPDF, Err: ErrNotPDF}
	}

	if v.SniffContent {
		if err := sniffPDF(f); err != nil {
			return nil, &RejectionError{Name: name, Reason: ReasonNotPDF, Err: fmt.Errorf("%w: %w", ErrNotPDF, err)}
		}
	}

	return &models.FileInfo{
		ID:         uuid.NewString(),
		Name:       name,
		Size:       f.Size(),
		SelectedAt: time.Now(),
	}, nil
}

// Extension returns the lower-cased extension of name without the dot, or ""
// when name has none.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func sniffPDF(f File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(rc, head); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(head, pdfMagic) {
		return errors.New("missing %PDF- header")
	}
	return nil
}
