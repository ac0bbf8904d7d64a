package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/spec-kit/enrollment-portal/internal/config"
)

var versionSegment = regexp.MustCompile(`^v\d+$`)

// ObjectRef identifies a Cloudinary asset.
type ObjectRef struct {
	ResourceType string
	PublicID     string
}

// ParseURL extracts the resource type and public ID from a delivery URL of the form
// https://res.cloudinary.com/<cloud>/<resource_type>/upload/[v<version>/]<public_id>.<ext>.
// Raw assets keep their extension as part of the public ID.
func ParseURL(raw string) (ObjectRef, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ObjectRef{}, ErrUnrecognizedURL
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	uploadIdx := -1
	for i, s := range segments {
		if s == "upload" {
			uploadIdx = i
			break
		}
	}
	if uploadIdx < 1 || uploadIdx == len(segments)-1 {
		return ObjectRef{}, ErrUnrecognizedURL
	}
	resourceType := segments[uploadIdx-1]
	rest := segments[uploadIdx+1:]
	for i, s := range rest {
		if versionSegment.MatchString(s) {
			rest = rest[i+1:]
			break
		}
	}
	if len(rest) == 0 {
		return ObjectRef{}, ErrUnrecognizedURL
	}
	publicID, err := url.PathUnescape(strings.Join(rest, "/"))
	if err != nil {
		return ObjectRef{}, ErrUnrecognizedURL
	}
	if resourceType != "raw" {
		publicID = strings.TrimSuffix(publicID, path.Ext(publicID))
	}
	if publicID == "" {
		return ObjectRef{}, ErrUnrecognizedURL
	}
	return ObjectRef{ResourceType: resourceType, PublicID: publicID}, nil
}

// CloudinaryStore stores files as Cloudinary image assets (PDFs included).
type CloudinaryStore struct {
	cld     *cloudinary.Cloudinary
	timeout time.Duration
}

// NewCloudinaryStore builds the client from CLOUDINARY_URL or explicit credentials.
func NewCloudinaryStore(cfg config.StorageConfig) (*CloudinaryStore, error) {
	var (
		cld *cloudinary.Cloudinary
		err error
	)
	if cfg.CloudinaryURL != "" {
		cld, err = cloudinary.NewFromURL(cfg.CloudinaryURL)
	} else {
		cld, err = cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	}
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &CloudinaryStore{cld: cld, timeout: timeout}, nil
}

// Upload stores obj and returns its secure delivery URL.
func (s *CloudinaryStore) Upload(ctx context.Context, obj Object) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.cld.Upload.Upload(ctx, bytes.NewReader(obj.Data), uploader.UploadParams{
		Folder:       obj.Folder,
		PublicID:     obj.Name,
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	if res.SecureURL == "" {
		return "", errors.New("cloudinary upload: empty url")
	}
	return res.SecureURL, nil
}

// Delete destroys the asset behind url. An asset that is already gone counts as deleted.
func (s *CloudinaryStore) Delete(ctx context.Context, rawURL string) error {
	ref, err := ParseURL(rawURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     ref.PublicID,
		ResourceType: ref.ResourceType,
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", res.Error.Message)
	}
	if res.Result != "ok" && res.Result != "not found" {
		return fmt.Errorf("cloudinary destroy: unexpected result %q", res.Result)
	}
	return nil
}
