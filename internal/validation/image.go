package validation

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"strings"

	"agora/internal/models"

	_ "golang.org/x/image/webp" // Register WebP decoder
)

// imageFormats are the decoders registered above.
var imageFormats = map[string]bool{"png": true, "jpeg": true, "gif": true, "webp": true}

// ImageInput is the image part of a post payload: inline base64 data with
// its declared size, or a URL, never both.
type ImageInput struct {
	Data string
	Size int64
	URL  string
}

// StripDataURI removes a "data:<mime>;base64," prefix if present.
func StripDataURI(data string) string {
	if strings.HasPrefix(data, "data:") {
		if i := strings.Index(data, ","); i >= 0 {
			return data[i+1:]
		}
	}
	return data
}

// ValidateImage enforces the mutual exclusion between data and URL and the
// size limit, and checks that inline data decodes as a PNG, JPEG, GIF or
// WebP image. A zero declared size is filled from the decoded payload.
func ValidateImage(in *ImageInput, maxBytes int64) error {
	in.Data = StripDataURI(strings.TrimSpace(in.Data))
	in.URL = strings.TrimSpace(in.URL)

	if in.Data != "" && in.URL != "" {
		return models.NewValidationError("image_data and image_url are mutually exclusive")
	}
	if in.URL != "" {
		if err := validate.Var(in.URL, "url"); err != nil {
			return models.NewValidationError("image_url must be a valid URL")
		}
		in.Size = 0
		return nil
	}
	if in.Data == "" {
		in.Size = 0
		return nil
	}

	decoded, err := base64.StdEncoding.DecodeString(in.Data)
	if err != nil {
		return models.NewValidationError("image_data must be base64 encoded")
	}
	if in.Size < 0 {
		return models.NewValidationError("image_size must not be negative")
	}
	if in.Size == 0 {
		in.Size = int64(len(decoded))
	}
	if maxBytes > 0 && (in.Size > maxBytes || int64(len(decoded)) > maxBytes) {
		return models.NewValidationError("image exceeds the maximum allowed size")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(decoded))
	if err != nil || !imageFormats[format] {
		return models.NewValidationError("image_data must be a PNG, JPEG, GIF or WebP image")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return models.NewValidationError("image_data has no pixels")
	}
	return nil
}
