package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

func encode(t *testing.T, enc func(io.Writer, image.Image) error, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := enc(&buf, testImage(w, h)); err != nil {
		t.Fatalf("кодирование: %v", err)
	}
	return buf.Bytes()
}

func TestProbeImage_Formats(t *testing.T) {
	tests := []struct {
		name string
		enc  func(io.Writer, image.Image) error
	}{
		{"png", png.Encode},
		{"jpeg", func(w io.Writer, m image.Image) error { return jpeg.Encode(w, m, nil) }},
		{"gif", func(w io.Writer, m image.Image) error { return gif.Encode(w, m, nil) }},
		{"bmp", bmp.Encode},
		{"tiff", func(w io.Writer, m image.Image) error { return tiff.Encode(w, m, nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encode(t, tt.enc, 37, 21)
			dims, err := ProbeImage(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("ProbeImage: %v", err)
			}
			if dims.Width != 37 || dims.Height != 21 {
				t.Errorf("ожидалось 37x21, получено %dx%d", dims.Width, dims.Height)
			}
		})
	}
}

func TestProbeImage_Large(t *testing.T) {
	// Заголовок больше буфера sniff-а не мешает разбору
	data := encode(t, png.Encode, 1920, 1080)
	dims, err := ProbeImage(bytes.NewReader(data))
	if err != nil || dims.Width != 1920 || dims.Height != 1080 {
		t.Errorf("ожидалось 1920x1080, получено %+v (%v)", dims, err)
	}
}

func TestProbeImage_NotImage(t *testing.T) {
	for name, body := range map[string]string{
		"text":  "просто текст, не картинка",
		"empty": "",
		"pdf":   "%PDF-1.4\n%âãÏÓ\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ProbeImage(strings.NewReader(body))
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("ожидалось ErrUnsupported, получено %v", err)
			}
		})
	}
}

func TestProbeImage_Truncated(t *testing.T) {
	data := encode(t, png.Encode, 10, 10)
	if _, err := ProbeImage(bytes.NewReader(data[:12])); err == nil {
		t.Error("обрезанный PNG: ожидалась ошибка")
	}
}
