package attachment

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medchat/pkg/errors"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLimits(t *testing.T) {
	assert.Equal(t, int64(1<<20), LimitFor(CategoryImage))
	assert.Equal(t, int64(1<<20), LimitFor(CategoryFile))
	assert.Equal(t, int64(2<<20), LimitFor(CategoryAudio))
	assert.Equal(t, int64(10<<20), LimitFor(CategoryVideo))

	assert.NoError(t, CheckSize(CategoryAudio, 2<<20))
	assert.True(t, errors.Is(CheckSize(CategoryAudio, 2<<20+1), errors.CodeFileTooLarge))
}

func TestDetect(t *testing.T) {
	mime, cat := Detect("audio/webm;codecs=opus", nil)
	assert.Equal(t, "audio/webm", mime)
	assert.Equal(t, CategoryAudio, cat)

	mime, cat = Detect("", pngBytes(t, 2, 2))
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, CategoryImage, cat)

	mime, cat = Detect("application/octet-stream", []byte("plain text"))
	assert.Equal(t, "application/octet-stream", mime)
	assert.Equal(t, CategoryFile, cat)
}

func TestEncodeImageIsResizedToJPEG(t *testing.T) {
	enc := NewEncoder(100, 70)

	fd, err := enc.Encode(&Attachment{Name: "scan.png", MimeType: "image/png", Data: pngBytes(t, 400, 200)})
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", fd.Type)
	assert.Equal(t, "image", fd.Category)
	assert.Equal(t, "scan.png", fd.Name)
	require.True(t, strings.HasPrefix(fd.Base64, "data:image/jpeg;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(fd.Base64, "data:image/jpeg;base64,"))
	require.NoError(t, err)
	assert.Equal(t, int64(len(raw)), fd.Size)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

// 1x1 lossless WebP.
const tinyWebP = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func TestEncodeWebPIsReencodedToJPEG(t *testing.T) {
	data, err := base64.StdEncoding.DecodeString(tinyWebP)
	require.NoError(t, err)

	fd, err := NewEncoder(100, 70).Encode(&Attachment{Name: "rash.webp", MimeType: "image/webp", Data: data})
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", fd.Type)
	assert.Equal(t, "image", fd.Category)
	require.True(t, strings.HasPrefix(fd.Base64, "data:image/jpeg;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(fd.Base64, "data:image/jpeg;base64,"))
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 1, cfg.Width)
	assert.Equal(t, 1, cfg.Height)
}

func TestEncodeRejectsOversizedImageBeforeDecoding(t *testing.T) {
	enc := NewEncoder(0, 0)

	_, err := enc.Encode(&Attachment{Name: "xray.png", MimeType: "image/png", Data: make([]byte, 2<<20)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeFileTooLarge))
}

func TestEncodeBrokenImage(t *testing.T) {
	enc := NewEncoder(0, 0)

	_, err := enc.Encode(&Attachment{Name: "broken.png", MimeType: "image/png", Data: []byte("not an image")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeAttachmentProcessing))
}

func TestEncodeAudioKeepsBytesAndDuration(t *testing.T) {
	enc := NewEncoder(0, 0)
	data := []byte("fake-ogg-bytes")

	fd, err := enc.Encode(&Attachment{Name: "note.ogg", MimeType: "audio/ogg", Data: data, Duration: 4.5})
	require.NoError(t, err)

	assert.Equal(t, "audio", fd.Category)
	assert.Equal(t, 4.5, fd.Duration)
	assert.Equal(t, int64(len(data)), fd.Size)
	assert.Equal(t, "data:audio/ogg;base64,"+base64.StdEncoding.EncodeToString(data), fd.Base64)
}

func TestEncodeEmpty(t *testing.T) {
	_, err := NewEncoder(0, 0).Encode(&Attachment{Name: "empty"})
	assert.True(t, errors.Is(err, errors.CodeAttachmentProcessing))
}
