package validation

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"agora/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type postPayload struct {
	Type     string `json:"type" validate:"required,oneof=offer need"`
	Title    string `json:"title" validate:"required,max=10"`
	Category string `json:"category" validate:"omitempty,category"`
}

func TestStruct(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      postPayload
		wantMsg string
	}{
		{"Valid", postPayload{Type: "offer", Title: "Ladder"}, ""},
		{"Missing Title", postPayload{Type: "offer"}, "title is required"},
		{"Long Title", postPayload{Type: "need", Title: strings.Repeat("x", 11)}, "title must be at most 10 characters"},
		{"Bad Type", postPayload{Type: "sale", Title: "x"}, "type must be one of: offer, need"},
		{"Bad Category", postPayload{Type: "offer", Title: "x", Category: "Tools!"}, "category must be 2-32 lowercase letters, numbers or hyphens"},
		{"Good Category", postPayload{Type: "offer", Title: "x", Category: "garden-tools"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestValidateCategory(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateCategory(""))
	assert.NoError(t, ValidateCategory("kids"))
	assert.Error(t, ValidateCategory("a"))
	assert.Error(t, ValidateCategory("-tools"))
	assert.Error(t, ValidateCategory("Tools"))
	assert.Equal(t, "garden", NormalizeCategory("  Garden "))
}

func TestSanitizeText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Free sofa", SanitizeText("  <b>Free</b> sofa<script>alert(1)</script> "))
	assert.Equal(t, "Tom & Jerry's", SanitizeText("Tom & Jerry's"))
	assert.Equal(t, "", SanitizeText("<img src=x onerror=alert(1)>"))
}

// encodeImage renders a 2x2 image in the given format and base64-encodes it.
func encodeImage(t *testing.T, format string) (string, int64) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	}
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(buf.Bytes()), int64(buf.Len())
}

func TestValidateImage(t *testing.T) {
	t.Parallel()
	payload, size := encodeImage(t, "png")
	jpegPayload, jpegSize := encodeImage(t, "jpeg")
	gifPayload, gifSize := encodeImage(t, "gif")
	text := base64.StdEncoding.EncodeToString([]byte("just some text, not pixels"))
	truncated := base64.StdEncoding.EncodeToString(mustDecode(t, payload)[:16])

	tests := []struct {
		name     string
		in       ImageInput
		max      int64
		wantErr  bool
		wantSize int64
	}{
		{name: "No Image", in: ImageInput{}, max: 1 << 20},
		{name: "Data Fills Size", in: ImageInput{Data: payload}, max: 1 << 20, wantSize: size},
		{name: "Declared Size Kept", in: ImageInput{Data: payload, Size: size + 2}, max: 1 << 20, wantSize: size + 2},
		{name: "Data URI Prefix", in: ImageInput{Data: "data:image/png;base64," + payload}, max: 1 << 20, wantSize: size},
		{name: "JPEG", in: ImageInput{Data: jpegPayload}, max: 1 << 20, wantSize: jpegSize},
		{name: "GIF", in: ImageInput{Data: gifPayload}, max: 1 << 20, wantSize: gifSize},
		{name: "URL Only", in: ImageInput{URL: "https://img.example/x.png"}, max: 100},
		{name: "Both", in: ImageInput{Data: payload, URL: "https://img.example/x.png"}, max: 1 << 20, wantErr: true},
		{name: "Not Base64", in: ImageInput{Data: "***"}, max: 100, wantErr: true},
		{name: "Not An Image", in: ImageInput{Data: text}, max: 1 << 20, wantErr: true},
		{name: "Truncated Header", in: ImageInput{Data: truncated}, max: 1 << 20, wantErr: true},
		{name: "Too Large", in: ImageInput{Data: payload}, max: 5, wantErr: true},
		{name: "Declared Too Large", in: ImageInput{Data: payload, Size: 1 << 21}, max: 1 << 20, wantErr: true},
		{name: "Bad URL", in: ImageInput{URL: "not a url"}, max: 100, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			err := ValidateImage(&in, tt.max)
			if tt.wantErr {
				assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, in.Size)
		})
	}
}

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	return raw
}
