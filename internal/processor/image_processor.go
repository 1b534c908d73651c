package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/disintegration/imaging"

	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/pkg/idgen"
	pkglog "github.com/weiawesome/wes-market/pkg/log"
	"github.com/weiawesome/wes-market/pkg/storage"
)

// ErrInvalidImage is returned when the upload is not a decodable image or
// exceeds the size limit.
var ErrInvalidImage = errors.New("invalid image")

// Config controls how listing images are normalized.
type Config struct {
	MaxWidth    int    `mapstructure:"max_width"`
	MaxHeight   int    `mapstructure:"max_height"`
	JPEGQuality int    `mapstructure:"jpeg_quality"`
	MaxBytes    int64  `mapstructure:"max_bytes"`
	KeyPrefix   string `mapstructure:"key_prefix"`
}

// ListingImageProcessor shrinks uploads to fit the configured box, encodes
// them as JPEG and writes them to storage.
type ListingImageProcessor struct {
	storage storage.Storage
	cfg     Config
	newID   func() (string, error)
}

// NewListingImageProcessor constructs a ListingImageProcessor. Zero config
// fields fall back to 1600x1600, quality 85, 10 MiB and prefix "listings/".
func NewListingImageProcessor(store storage.Storage, cfg Config) *ListingImageProcessor {
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 1600
	}
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = 1600
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 85
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = domain.DefaultImageKeyPrefix
	}
	return &ListingImageProcessor{
		storage: store,
		cfg:     cfg,
		newID:   idgen.ULID,
	}
}

// KeyScope returns the prefix every image key of listingID starts with.
func (p *ListingImageProcessor) KeyScope(listingID int64) string {
	return domain.ImageKeyScope(p.cfg.KeyPrefix, listingID)
}

// Process decodes r, resizes it and stores the JPEG under
// "{prefix}{listingID}/{ulid}.jpg". It returns the storage key.
func (p *ListingImageProcessor) Process(ctx context.Context, listingID int64, r io.Reader) (string, error) {
	l := pkglog.Ctx(ctx)

	// Read one byte past the limit to detect oversized uploads.
	raw, err := io.ReadAll(io.LimitReader(r, p.cfg.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(raw)) > p.cfg.MaxBytes {
		return "", fmt.Errorf("%w: larger than %d bytes", ErrInvalidImage, p.cfg.MaxBytes)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	// Fit only shrinks; smaller images keep their size.
	resized := imaging.Fit(img, p.cfg.MaxWidth, p.cfg.MaxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(p.cfg.JPEGQuality)); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	id, err := p.newID()
	if err != nil {
		return "", fmt.Errorf("generate image id: %w", err)
	}
	key := p.KeyScope(listingID) + id + ".jpg"

	if err := p.storage.Write(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "image/jpeg"); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	b := resized.Bounds()
	l.Info().
		Int64(pkglog.FieldListingID, listingID).
		Str("key", key).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Msg("stored listing image")
	return key, nil
}
