package model

import "strings"

// FileCategory — категория файла, вычисляемая один раз из MIME-типа.
type FileCategory int

const (
	CategoryOther FileCategory = iota
	CategoryImage
	CategoryVideo
	CategoryAudio
)

// CategoryOf определяет категорию по MIME-типу (регистр и пробелы игнорируются).
func CategoryOf(mimeType string) FileCategory {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	major, _, _ := strings.Cut(mt, "/")
	switch major {
	case "image":
		return CategoryImage
	case "video":
		return CategoryVideo
	case "audio":
		return CategoryAudio
	default:
		return CategoryOther
	}
}

func (c FileCategory) String() string {
	switch c {
	case CategoryImage:
		return "image"
	case CategoryVideo:
		return "video"
	case CategoryAudio:
		return "audio"
	default:
		return "other"
	}
}
