package model

import (
	"testing"
	"time"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		mime string
		want FileCategory
	}{
		{"image/png", CategoryImage},
		{" IMAGE/JPEG ", CategoryImage},
		{"video/mp4", CategoryVideo},
		{"audio/mpeg", CategoryAudio},
		{"application/pdf", CategoryOther},
		{"", CategoryOther},
		{"imagepng", CategoryOther},
	}

	for _, tt := range tests {
		if got := CategoryOf(tt.mime); got != tt.want {
			t.Errorf("CategoryOf(%q): ожидалось %s, получено %s", tt.mime, tt.want, got)
		}
	}
}

func TestUploadRecord_ServableOn(t *testing.T) {
	r := &UploadRecord{Domain: "Files.Example.com"}

	if !r.ServableOn("files.example.com") {
		t.Error("домен должен совпадать без учёта регистра")
	}
	if r.ServableOn("other.example.com") {
		t.Error("чужой домен не должен совпадать")
	}
	if !r.ServableOn("") {
		t.Error("запрос без хоста не ограничивается")
	}

	unbound := &UploadRecord{}
	if !unbound.ServableOn("any.example.com") {
		t.Error("запись без домена раздаётся на любом хосте")
	}
}

func TestUploadRecord_IsExpired(t *testing.T) {
	now := time.Now().UTC()
	r := &UploadRecord{ExpiresAt: now.Add(-time.Second)}
	if !r.IsExpired(now) {
		t.Error("запись с прошедшим ExpiresAt должна быть просрочена")
	}
	r.ExpiresAt = now.Add(time.Hour)
	if r.IsExpired(now) {
		t.Error("запись с будущим ExpiresAt не должна быть просрочена")
	}
}

func TestDomain_Host(t *testing.T) {
	sub := "files"
	d := &Domain{Domain: "example.com", Subdomain: &sub}
	if d.Host() != "files.example.com" {
		t.Errorf("Host: ожидалось files.example.com, получено %q", d.Host())
	}
	d.Subdomain = nil
	if d.Host() != "example.com" {
		t.Errorf("Host: ожидалось example.com, получено %q", d.Host())
	}
}

func TestThumbnailKey(t *testing.T) {
	tests := map[string]string{
		"clip.mp4":  "abc123/thumbnail/clip.jpg",
		"a.b.mov":   "abc123/thumbnail/a.b.jpg",
		"noext":     "abc123/thumbnail/noext.jpg",
		"trailing.": "abc123/thumbnail/trailing..jpg",
		".hidden":   "abc123/thumbnail/.hidden.jpg",
	}
	for filename, want := range tests {
		if got := ThumbnailKey("abc123", filename); got != want {
			t.Errorf("ThumbnailKey(%q): ожидалось %q, получено %q", filename, want, got)
		}
	}
}
