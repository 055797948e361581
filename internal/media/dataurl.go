package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// MaxDataURLSize bounds images inlined by DataURLStore.
const MaxDataURLSize = 500 << 10

// DataURLStore inlines small images as base64 data URLs. It needs no
// external service and serves development setups.
type DataURLStore struct{}

// Upload implements Store.
func (DataURLStore) Upload(ctx context.Context, img Image) (string, error) {
	if len(img.Data) > MaxDataURLSize {
		return "", fmt.Errorf("%w: %s is over 500KB, configure a hosted image backend", ErrTooLarge, img.Name)
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data), nil
}

// Delete implements Store; inline images have nothing to remove.
func (DataURLStore) Delete(ctx context.Context, url string) error {
	return nil
}

// Owns implements Store.
func (DataURLStore) Owns(url string) bool {
	return strings.HasPrefix(url, "data:image/")
}
