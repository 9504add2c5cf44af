// Package storage uploads user supplied images and hands back public URLs.
package storage

import (
	"context"
	"encoding/base64"
	"net/http"
	"regexp"
	"strings"

	"picshare/internal/pkg/apperr"
)

const DefaultMaxImageBytes = 10 << 20

var ErrInvalidImage = apperr.Validation("INVALID_IMAGE", "Photo must be a base64 encoded png, jpeg, webp or gif image")
var ErrImageTooLarge = apperr.Validation("IMAGE_TOO_LARGE", "Photo is too large")

// ImageStore persists an image given as a data URL under prefix and returns
// the URL clients should load it from.
type ImageStore interface {
	Put(ctx context.Context, prefix, dataURL string) (string, error)
}

type Image struct {
	ContentType string
	Ext         string
	Data        []byte
}

var dataURLPattern = regexp.MustCompile(`^data:(image/(?:png|jpeg|jpg|webp|gif));base64,(.+)$`)

var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// DecodeDataURL parses a base64 image data URL and checks that the payload
// really is an image.
func DecodeDataURL(s string, maxBytes int) (*Image, error) {
	m := dataURLPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil, ErrInvalidImage
	}
	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(m[2])) > maxBytes+2 {
		return nil, ErrImageTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return nil, ErrInvalidImage.Wrap(err)
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, ErrImageTooLarge
	}

	contentType := m[1]
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return nil, ErrInvalidImage
	}
	return &Image{ContentType: contentType, Ext: extensions[m[1]], Data: data}, nil
}

// InlineStore keeps the data URL itself as the image URL. Used when no
// bucket is configured.
type InlineStore struct {
	MaxBytes int
}

func (s InlineStore) Put(_ context.Context, _ string, dataURL string) (string, error) {
	limit := s.MaxBytes
	if limit == 0 {
		limit = DefaultMaxImageBytes
	}
	if _, err := DecodeDataURL(dataURL, limit); err != nil {
		return "", err
	}
	return strings.TrimSpace(dataURL), nil
}
