// Пакет media — определение размеров изображений и превью видео.
// Все ошибки здесь вспомогательные: вызывающий логирует их и продолжает.
package media

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// sniffSize — сколько байт заголовка смотрит mimetype.
const sniffSize = 3072

// ErrUnsupported — содержимое не является изображением известного формата.
var ErrUnsupported = errors.New("формат изображения не поддерживается")

// Dimensions — ширина и высота в пикселях.
type Dimensions struct {
	Width  int
	Height int
}

// ProbeImage читает заголовок изображения и возвращает его размеры.
// Тело целиком не декодируется.
func ProbeImage(r io.Reader) (Dimensions, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Dimensions{}, fmt.Errorf("ошибка чтения заголовка: %w", err)
	}

	// Заявленный клиентом MIME-тип не проверяется, смотрим на сами байты
	detected := mimetype.Detect(head)
	if !strings.HasPrefix(detected.String(), "image/") {
		return Dimensions{}, fmt.Errorf("%w: %s", ErrUnsupported, detected.String())
	}

	cfg, format, err := image.DecodeConfig(br)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return Dimensions{}, fmt.Errorf("%w: %s", ErrUnsupported, detected.String())
		}
		return Dimensions{}, fmt.Errorf("ошибка разбора заголовка %s: %w", format, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Dimensions{}, fmt.Errorf("%w: нулевые размеры", ErrUnsupported)
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}
