package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxUploadSize caps a single photo.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers around the photo.
const multipartOverhead = 64 << 10

var (
	errImageRequired    = errors.New("image file is required")
	errImageTooLarge    = errors.New("image exceeds maximum upload size")
	errUnsupportedImage = errors.New("file must be an image")
	errUnreadableImage  = errors.New("unable to read image")
)

type imageUpload struct {
	data        []byte
	contentType string
}

// readImage reads the "image" form part. When required is false a request
// without the part yields an empty upload.
func readImage(c *gin.Context, required bool) (imageUpload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return imageUpload{}, errImageTooLarge
		case required:
			return imageUpload{}, errImageRequired
		default:
			return imageUpload{}, nil
		}
	}
	if file.Size > MaxUploadSize {
		return imageUpload{}, errImageTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return imageUpload{}, errUnreadableImage
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		return imageUpload{}, errUnreadableImage
	}
	if len(data) > MaxUploadSize {
		return imageUpload{}, errImageTooLarge
	}
	if len(data) == 0 {
		if required {
			return imageUpload{}, errImageRequired
		}
		return imageUpload{}, nil
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return imageUpload{}, errUnsupportedImage
	}
	return imageUpload{data: data, contentType: contentType}, nil
}

func (h *Handler) writeUploadError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, errImageTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, errUnsupportedImage):
		status = http.StatusUnsupportedMediaType
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
