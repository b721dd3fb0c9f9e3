package matcher

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// PreviewMaxSize bounds the long side of preview thumbnails in pixels.
const PreviewMaxSize = 320

// ErrEmptyImage is returned when an acquisition produced no bytes.
var ErrEmptyImage = errors.New("empty image")

// CapturedImage holds one acquired photo and the preview shown while it is analysed.
// Values are never mutated; a new acquisition replaces the whole value.
type CapturedImage struct {
	Data        []byte
	ContentType string
	// Preview is a data URI the presentation layer can render directly.
	Preview string
}

// NewCapturedImage copies data and builds its preview. The content type is
// sniffed when not supplied.
func NewCapturedImage(data []byte, contentType string) (CapturedImage, error) {
	if len(data) == 0 {
		return CapturedImage{}, ErrEmptyImage
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	if contentType == "" {
		contentType = http.DetectContentType(owned)
	}
	return CapturedImage{
		Data:        owned,
		ContentType: contentType,
		Preview:     buildPreview(owned, contentType),
	}, nil
}

// IsZero reports whether no image is held.
func (c CapturedImage) IsZero() bool {
	return len(c.Data) == 0
}

func buildPreview(data []byte, contentType string) string {
	thumb, err := thumbnail(data, PreviewMaxSize)
	if err != nil {
		return dataURI(contentType, data)
	}
	return dataURI("image/jpeg", thumb)
}

func thumbnail(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	newWidth, newHeight := width, height
	if width > maxSize || height > maxSize {
		if width > height {
			newWidth = maxSize
			newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
		} else {
			newHeight = maxSize
			newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
		}
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func dataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
