package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	execute "github.com/alexellis/go-execute/v2"
)

const (
	thumbnailFile = "thumbnail.jpg"
	// Кадр берётся с первой секунды, чтобы пропустить чёрный кадр в начале
	thumbnailSeek = "1"
)

// VideoThumbnailer извлекает кадр из видео через ffmpeg.
type VideoThumbnailer struct {
	ffmpegPath string
	logger     *slog.Logger
}

// NewVideoThumbnailer создаёт генератор превью. ffmpegPath — путь к бинарнику ffmpeg.
func NewVideoThumbnailer(ffmpegPath string, logger *slog.Logger) *VideoThumbnailer {
	return &VideoThumbnailer{
		ffmpegPath: ffmpegPath,
		logger:     logger.With(slog.String("component", "thumbnailer")),
	}
}

// Thumbnail копирует видео во временную директорию, запускает ffmpeg
// и возвращает JPEG-кадр. ext — расширение исходного файла (".mp4").
func (t *VideoThumbnailer) Thumbnail(ctx context.Context, src io.Reader, ext string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "tempshare-thumb-*")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временной директории: %w", err)
	}
	defer os.RemoveAll(dir)

	input := "input" + ext
	if err := writeFile(filepath.Join(dir, input), src); err != nil {
		return nil, err
	}

	task := execute.ExecTask{
		Command: t.ffmpegPath,
		Args: []string{
			"-i", input,
			"-ss", thumbnailSeek,
			"-vframes", "1",
			"-q:v", "2",
			"-y", thumbnailFile,
		},
		Cwd: dir,
	}
	res, err := task.Execute(ctx)
	if res.ExitCode != 0 {
		t.logger.Debug("ffmpeg завершился с ошибкой",
			slog.Int("exit_code", res.ExitCode),
			slog.String("stderr", res.Stderr),
		)
		return nil, fmt.Errorf("ffmpeg вернул код %d", res.ExitCode)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка запуска ffmpeg: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, thumbnailFile))
	if err != nil {
		return nil, fmt.Errorf("ffmpeg не создал превью: %w", err)
	}
	return data, nil
}

func writeFile(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ошибка создания файла: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("ошибка записи файла: %w", err)
	}
	return f.Close()
}
