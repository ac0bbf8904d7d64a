package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gosimple/slug"
)

var (
	// ErrNotConfigured is returned by the disabled store.
	ErrNotConfigured = errors.New("object storage not configured")
	// ErrUnsupportedContent is returned for files that are not PDF or common images.
	ErrUnsupportedContent = errors.New("unsupported file type")
	// ErrUnrecognizedURL is returned when a URL does not point into the object store.
	ErrUnrecognizedURL = errors.New("url is not a stored object")
)

var allowedContentTypes = []string{"application/pdf", "image/jpeg", "image/png", "image/webp"}

// Object is a file about to be stored.
type Object struct {
	Folder      string
	Name        string
	ContentType string
	Data        []byte
}

// ObjectStore uploads files and deletes them by their public URL.
type ObjectStore interface {
	Upload(ctx context.Context, obj Object) (string, error)
	Delete(ctx context.Context, url string) error
}

// DetectContentType sniffs data and returns its MIME type when it is accepted.
func DetectContentType(data []byte) (string, error) {
	detected := mimetype.Detect(data)
	for _, allowed := range allowedContentTypes {
		if detected.Is(allowed) {
			return allowed, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, detected.String())
}

// ObjectName builds "<kind>_<owner>_<unix millis>" with both parts slugified, e.g.
// "pdf-dni-frente_jose-perez_1718000000000".
func ObjectName(kind, owner string, now time.Time) string {
	ownerSlug := slug.Make(owner)
	if ownerSlug == "" {
		ownerSlug = "user"
	}
	return fmt.Sprintf("%s_%s_%d", slug.Make(kind), ownerSlug, now.UnixMilli())
}

type disabledStore struct{}

// NewDisabledStore returns a store that fails every call with ErrNotConfigured.
func NewDisabledStore() ObjectStore {
	return disabledStore{}
}

func (disabledStore) Upload(context.Context, Object) (string, error) {
	return "", ErrNotConfigured
}

func (disabledStore) Delete(context.Context, string) error {
	return ErrNotConfigured
}
