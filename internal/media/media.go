// Package media validates and uploads vehicle, article and review images.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
)

// Upload limits.
const (
	MaxVehicleImages = 4
	MaxArticleImages = 4
	MaxReviewImages  = 3
	MaxFileSize      = 10 << 20
	MaxEdge          = 2000
	JPEGQuality      = 85
)

var (
	// ErrTooManyImages reports more files than the owning record accepts.
	ErrTooManyImages = errors.New("media: too many images")
	// ErrNotImage reports content that does not sniff as an image.
	ErrNotImage = errors.New("media: file is not an image")
	// ErrTooLarge reports a file above the size limit of the store.
	ErrTooLarge = errors.New("media: file is too large")
)

// Image is a single file queued for upload.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Store persists images and returns a public URL for each.
type Store interface {
	Upload(ctx context.Context, img Image) (string, error)
	Delete(ctx context.Context, url string) error
	// Owns reports whether url points at an image this store could have
	// issued, and so may be attached to a record or deleted.
	Owns(url string) bool
}

// Validate enforces the count and per-file size limits.
func Validate(images []Image, max int) error {
	if len(images) > max {
		return fmt.Errorf("%w: at most %d allowed, got %d", ErrTooManyImages, max, len(images))
	}
	for _, img := range images {
		if len(img.Data) > MaxFileSize {
			return fmt.Errorf("%w: %s exceeds 10MB", ErrTooLarge, img.Name)
		}
	}
	return nil
}

// Prepare sniffs the content type and downscales images whose longest edge
// exceeds MaxEdge. Formats the decoder cannot read are passed through.
func Prepare(img Image) (Image, error) {
	mt := mimetype.Detect(img.Data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return Image{}, fmt.Errorf("%w: %s", ErrNotImage, img.Name)
	}
	img.ContentType = mt.String()
	if img.Name == "" {
		img.Name = "image" + mt.Extension()
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil || (cfg.Width <= MaxEdge && cfg.Height <= MaxEdge) {
		return img, nil
	}
	decoded, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
	if err != nil {
		return img, nil
	}
	resized := imaging.Fit(decoded, MaxEdge, MaxEdge, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return Image{}, fmt.Errorf("resize %s: %w", img.Name, err)
	}
	img.Data = buf.Bytes()
	img.ContentType = "image/jpeg"
	img.Name = strings.TrimSuffix(img.Name, path.Ext(img.Name)) + ".jpg"
	return img, nil
}

// UploadAll prepares and uploads images concurrently. The returned URLs
// keep the input order. Any failure fails the whole batch; the URLs that were
// stored before it are returned with the error so the caller can remove them.
func UploadAll(ctx context.Context, store Store, images []Image) ([]string, error) {
	urls := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range images {
		g.Go(func() error {
			prepared, err := Prepare(img)
			if err != nil {
				return fmt.Errorf("failed to upload %s: %w", img.Name, err)
			}
			u, err := store.Upload(gctx, prepared)
			if err != nil {
				return fmt.Errorf("failed to upload %s: %w", img.Name, err)
			}
			urls[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		stored := urls[:0]
		for _, u := range urls {
			if u != "" {
				stored = append(stored, u)
			}
		}
		return stored, err
	}
	return urls, nil
}

// DeleteAll removes every URL, returning the first failure.
func DeleteAll(ctx context.Context, store Store, urls []string) error {
	var firstErr error
	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		if err := store.Delete(ctx, u); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("delete %s: %w", u, err)
		}
	}
	return firstErr
}

// FromMultipart reads the files posted under field. Empty file inputs are
// skipped.
func FromMultipart(form *multipart.Form, field string) ([]Image, error) {
	if form == nil {
		return nil, nil
	}
	var out []Image
	for _, fh := range form.File[field] {
		if fh.Size == 0 {
			continue
		}
		if fh.Size > MaxFileSize {
			return nil, fmt.Errorf("%w: %s exceeds 10MB", ErrTooLarge, fh.Filename)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		out = append(out, Image{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data})
	}
	return out, nil
}
