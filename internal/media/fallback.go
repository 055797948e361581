package media

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
)

// FallbackStore uploads to primary and, when that fails, to secondary.
type FallbackStore struct {
	primary   Store
	secondary Store
	logger    *slog.Logger
}

// NewFallbackStore constructs the store.
func NewFallbackStore(primary, secondary Store, logger *slog.Logger) *FallbackStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackStore{primary: primary, secondary: secondary, logger: logger}
}

type noticeKey struct{}

// Notice records whether any upload in a request used the secondary store.
type Notice struct {
	used atomic.Bool
}

// Used reports whether a fallback happened.
func (n *Notice) Used() bool {
	return n != nil && n.used.Load()
}

// WithNotice attaches a fresh Notice to ctx.
func WithNotice(ctx context.Context) (context.Context, *Notice) {
	n := &Notice{}
	return context.WithValue(ctx, noticeKey{}, n), n
}

// Upload implements Store.
func (s *FallbackStore) Upload(ctx context.Context, img Image) (string, error) {
	u, err := s.primary.Upload(ctx, img)
	if err == nil {
		return u, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	s.logger.Warn("primary image store failed, using fallback", slog.String("file", img.Name), slog.Any("error", err))
	u, ferr := s.secondary.Upload(ctx, img)
	if ferr != nil {
		return "", ferr
	}
	if n, ok := ctx.Value(noticeKey{}).(*Notice); ok {
		n.used.Store(true)
	}
	return u, nil
}

// Delete implements Store, routing inline images to the secondary store.
func (s *FallbackStore) Delete(ctx context.Context, url string) error {
	if strings.HasPrefix(url, "data:") {
		return s.secondary.Delete(ctx, url)
	}
	return s.primary.Delete(ctx, url)
}

// Owns implements Store.
func (s *FallbackStore) Owns(url string) bool {
	return s.primary.Owns(url) || s.secondary.Owns(url)
}
