package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

const (
	cloudinaryDeliveryHost  = "res.cloudinary.com"
	cloudinaryDefaultPreset = "ml_default"
)

var errPresetRejected = errors.New("cloudinary: upload preset rejected")

// CloudinaryConfig configures the Cloudinary backend.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Preset    string
	Folder    string
	// BaseURL overrides the upload API host.
	BaseURL string
}

// CloudinaryStore uploads with an unsigned preset and deletes with a signed
// destroy call.
type CloudinaryStore struct {
	cfg    CloudinaryConfig
	api    *uploader.API
	logger *slog.Logger
}

// NewCloudinaryStore builds the SDK client for cfg.
func NewCloudinaryStore(cfg CloudinaryConfig, logger *slog.Logger) (*CloudinaryStore, error) {
	if cfg.CloudName == "" {
		return nil, errors.New("cloudinary cloud name is required")
	}
	if cfg.Preset == "" {
		cfg.Preset = "car_images"
	}
	if logger == nil {
		logger = slog.Default()
	}
	conf, err := config.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	if cfg.BaseURL != "" {
		conf.API.UploadPrefix = strings.TrimRight(cfg.BaseURL, "/")
	}
	cld, err := cloudinary.NewFromConfiguration(*conf)
	if err != nil {
		return nil, fmt.Errorf("cloudinary client: %w", err)
	}
	return &CloudinaryStore{cfg: cfg, api: &cld.Upload, logger: logger}, nil
}

// Upload implements Store. A rejected custom preset is retried once with the
// account default preset.
func (s *CloudinaryStore) Upload(ctx context.Context, img Image) (string, error) {
	secureURL, err := s.upload(ctx, img, s.cfg.Preset, s.cfg.Folder)
	if err == nil {
		return secureURL, nil
	}
	if !errors.Is(err, errPresetRejected) || s.cfg.Preset == cloudinaryDefaultPreset {
		return "", err
	}
	s.logger.Warn("cloudinary preset rejected, retrying with default", slog.String("preset", s.cfg.Preset), slog.Any("error", err))
	return s.upload(ctx, img, cloudinaryDefaultPreset, "")
}

func (s *CloudinaryStore) upload(ctx context.Context, img Image, preset, folder string) (string, error) {
	res, err := s.api.UnsignedUpload(ctx, bytes.NewReader(img.Data), preset, uploader.UploadParams{Folder: folder})
	msg := ""
	switch {
	case err != nil:
		msg = err.Error()
	case res == nil:
		msg = "empty response"
	default:
		msg = res.Error.Message
	}
	if msg != "" {
		if strings.Contains(strings.ToLower(msg), "preset") {
			return "", fmt.Errorf("%w: %s", errPresetRejected, msg)
		}
		if err != nil {
			return "", fmt.Errorf("cloudinary upload %s: %w", img.Name, err)
		}
		return "", fmt.Errorf("cloudinary upload %s: %s", img.Name, msg)
	}
	if res.SecureURL == "" {
		return "", errors.New("cloudinary: upload failed, no secure URL returned")
	}
	return res.SecureURL, nil
}

// Delete implements Store. URLs outside this account are ignored.
func (s *CloudinaryStore) Delete(ctx context.Context, rawURL string) error {
	publicID, ok := PublicIDFromURL(rawURL, s.cfg.CloudName)
	if !ok {
		if !strings.HasPrefix(rawURL, "data:") {
			s.logger.Warn("skipping delete of image outside cloudinary account", slog.String("url", rawURL))
		}
		return nil
	}
	res, err := s.api.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("cloudinary destroy %s: %w", publicID, err)
	}
	if res == nil {
		return fmt.Errorf("cloudinary destroy %s: empty response", publicID)
	}
	if msg := res.Error.Message; msg != "" {
		return fmt.Errorf("cloudinary destroy %s: %s", publicID, msg)
	}
	switch res.Result {
	case "ok", "not found":
		return nil
	}
	return fmt.Errorf("cloudinary: destroy %s returned %q", publicID, res.Result)
}

// Owns implements Store.
func (s *CloudinaryStore) Owns(rawURL string) bool {
	_, ok := PublicIDFromURL(rawURL, s.cfg.CloudName)
	return ok
}

var versionSegment = regexp.MustCompile(`^v\d+$`)

// PublicIDFromURL extracts the public id from an https delivery URL of
// cloudName: the path after /<cloud>/image/upload/, minus an optional version
// segment and the file extension. Any other host or cloud yields false.
func PublicIDFromURL(rawURL, cloudName string) (string, bool) {
	if cloudName == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" || !strings.EqualFold(u.Host, cloudinaryDeliveryHost) || u.RawQuery != "" {
		return "", false
	}
	rest, ok := strings.CutPrefix(u.Path, "/"+cloudName+"/image/upload/")
	if !ok || rest == "" {
		return "", false
	}
	segments := strings.Split(rest, "/")
	if len(segments) > 1 && versionSegment.MatchString(segments[0]) {
		segments = segments[1:]
	}
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return "", false
		}
	}
	last := len(segments) - 1
	segments[last] = strings.TrimSuffix(segments[last], path.Ext(segments[last]))
	id := strings.Join(segments, "/")
	return id, id != ""
}
