// Package attachment turns raw attachment bytes into the FileData stored on a
// message: category detection, per-category size ceilings, bounded-width
// JPEG recompression for images and data-URL encoding.
package attachment

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/h2non/filetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"medchat/internal/domain/entity"
	"medchat/pkg/errors"
)

type Category string

const (
	CategoryImage Category = "image"
	CategoryAudio Category = "audio"
	CategoryVideo Category = "video"
	CategoryFile  Category = "file"
)

const megabyte = 1024 * 1024

var limits = map[Category]int64{
	CategoryImage: 1 * megabyte,
	CategoryFile:  1 * megabyte,
	CategoryAudio: 2 * megabyte,
	CategoryVideo: 10 * megabyte,
}

const (
	DefaultMaxWidth = 800
	DefaultQuality  = 70
)

// Attachment is an upload as received from the client.
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
	Duration float64 // seconds, audio and video only
}

// LimitFor returns the size ceiling for a category.
func LimitFor(c Category) int64 {
	if limit, ok := limits[c]; ok {
		return limit
	}
	return limits[CategoryFile]
}

// CheckSize fails with FILE_TOO_LARGE when size exceeds the category ceiling.
func CheckSize(c Category, size int64) error {
	if limit := LimitFor(c); size > limit {
		return errors.FileTooLarge(string(c), size, limit)
	}
	return nil
}

// Detect resolves the MIME type, sniffing head when the declared type is
// missing or generic, and maps it to a category.
func Detect(declared string, head []byte) (string, Category) {
	mime := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" || mime == "application/octet-stream" {
		if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
			mime = kind.MIME.Value
		}
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	return mime, CategoryOf(mime)
}

func CategoryOf(mime string) Category {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return CategoryImage
	case strings.HasPrefix(mime, "audio/"):
		return CategoryAudio
	case strings.HasPrefix(mime, "video/"):
		return CategoryVideo
	default:
		return CategoryFile
	}
}

type Encoder struct {
	maxWidth int
	quality  int
}

func NewEncoder(maxWidth, quality int) *Encoder {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Encoder{maxWidth: maxWidth, quality: quality}
}

// Encode validates and encodes a. The size ceiling applies to the bytes as
// uploaded, before any recompression.
func (e *Encoder) Encode(a *Attachment) (*entity.FileData, error) {
	if a == nil || len(a.Data) == 0 {
		return nil, errors.AttachmentProcessing("Attachment is empty", nil)
	}

	mime, category := Detect(a.MimeType, a.Data)
	if err := CheckSize(category, int64(len(a.Data))); err != nil {
		return nil, err
	}

	data := a.Data
	if category == CategoryImage {
		compressed, err := e.compressImage(a.Data)
		if err != nil {
			return nil, errors.AttachmentProcessing("Failed to process image", err)
		}
		data = compressed
		mime = "image/jpeg"
	}

	fd := &entity.FileData{
		Base64:   fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)),
		Name:     a.Name,
		Size:     int64(len(data)),
		Type:     mime,
		Category: string(category),
	}
	if category == CategoryAudio || category == CategoryVideo {
		fd.Duration = a.Duration
	}
	return fd, nil
}

// compressImage scales the image down to maxWidth, flattens it onto white and
// re-encodes it as JPEG.
func (e *Encoder) compressImage(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	if width > e.maxWidth {
		height = height * e.maxWidth / width
		if height < 1 {
			height = 1
		}
		width = e.maxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
