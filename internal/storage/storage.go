// Package storage uploads user images (message attachments, profile pictures).
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
)

const (
	FolderMessages = "messages"
	FolderProfiles = "profiles"

	maxImageBytes = 8 << 20
)

var (
	ErrInvalidDataURL = errors.New("image must be a base64 data URL")
	ErrNotAnImage     = errors.New("only image uploads are allowed")
	ErrTooLarge       = errors.New("image is too large")
)

// ImageStore turns a data URL sent by a client into a URL that can be stored
// on a message or user.
type ImageStore interface {
	UploadDataURL(ctx context.Context, folder, dataURL string) (string, error)
}

// IsDataURL reports whether s looks like an inline upload rather than an
// already hosted URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// ParseDataURL decodes "data:<mime>;base64,<payload>"
func ParseDataURL(dataURL string) (contentType string, data []byte, err error) {
	if !IsDataURL(dataURL) {
		return "", nil, ErrInvalidDataURL
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", nil, ErrInvalidDataURL
	}

	contentType = strings.TrimSuffix(header, ";base64")
	if !strings.HasPrefix(contentType, "image/") {
		return "", nil, ErrNotAnImage
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > maxImageBytes {
		return "", nil, ErrTooLarge
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, ErrInvalidDataURL
	}
	return contentType, data, nil
}

// InlineStore keeps images as data URLs. It is used when no bucket is
// configured, typically in development.
type InlineStore struct{}

func (InlineStore) UploadDataURL(_ context.Context, _ string, dataURL string) (string, error) {
	if _, _, err := ParseDataURL(dataURL); err != nil {
		return "", err
	}
	return dataURL, nil
}
