package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bigkaa/tempshare/internal/storage/objectstore"
)

var (
	// errBodyTooShort — клиент прислал меньше заявленного.
	errBodyTooShort = errors.New("тело запроса короче заявленного размера")
	// errBodyTooLong — клиент прислал больше заявленного.
	errBodyTooLong = errors.New("тело запроса длиннее заявленного размера")
)

// boundedPipe передаёт ровно n байт из src в consume через io.Pipe.
// Запись и чтение идут параллельно: пока consume не забрал данные,
// чтение из src блокируется, поэтому память не зависит от n.
//
// Возвращает ошибку consume или, если источник дал не n байт,
// errBodyTooShort / errBodyTooLong.
func boundedPipe(ctx context.Context, src io.Reader, n int64, consume func(io.Reader) error) error {
	pr, pw := io.Pipe()

	copyDone := make(chan error, 1)
	go func() {
		copyDone <- copyExact(ctx, pw, src, n)
	}()

	consumeErr := consume(pr)
	// Разблокируем писателя, если consume остановился раньше времени
	pr.CloseWithError(io.ErrClosedPipe)
	copyErr := <-copyDone

	if errors.Is(copyErr, errBodyTooShort) || errors.Is(copyErr, errBodyTooLong) {
		return copyErr
	}
	if consumeErr != nil {
		return consumeErr
	}
	if copyErr != nil && !errors.Is(copyErr, io.ErrClosedPipe) {
		return copyErr
	}
	return nil
}

// copyExact копирует n байт и проверяет, что источник на этом закончился.
// Результат копирования передаётся читателю через CloseWithError.
func copyExact(ctx context.Context, pw *io.PipeWriter, src io.Reader, n int64) error {
	written, err := io.CopyN(pw, objectstore.ContextReader(ctx, src), n)
	switch {
	case errors.Is(err, io.EOF):
		err = fmt.Errorf("%w: получено %d из %d байт", errBodyTooShort, written, n)
	case err == nil:
		var extra [1]byte
		if m, _ := io.ReadFull(src, extra[:]); m > 0 {
			err = errBodyTooLong
		}
	}
	pw.CloseWithError(err)
	return err
}
