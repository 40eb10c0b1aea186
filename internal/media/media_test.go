package media

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		want Kind
	}{
		{"song.mp3", KindAudio},
		{"SONG.WAV", KindAudio},
		{"take.aif", KindAudio},
		{"take.aiff", KindAudio},
		{"clip.webm", KindVideo},
		{"clip.MOV", KindVideo},
		{"notes.txt", KindUnknown},
		{"noext", KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.name); got != tc.want {
				t.Fatalf("KindOf(%q) = %q, want %q", tc.name, got, tc.want)
			}
		})
	}
}

func TestOpen_CapturesNameAndSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.flac")
	if err := os.WriteFile(path, []byte("0123456789"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := Open("  " + path + "  ")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if f.Name != "track.flac" || f.Size != 10 {
		t.Fatalf("Open = %#v, want name track.flac size 10", f)
	}
	if f.Kind() != KindAudio {
		t.Fatalf("Kind = %q, want audio", f.Kind())
	}

	r, err := f.Reader()
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "0123456789" {
		t.Fatalf("payload = %q", data)
	}
}

func TestOpen_RejectsUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Open(path)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Open error = %v, want ErrUnsupported", err)
	}
	if !strings.Contains(err.Error(), ".pdf") {
		t.Fatalf("Open error = %q, want it to name the extension", err.Error())
	}
	var unsupported *UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Open error = %T, want *UnsupportedError", err)
	}
	if got := unsupported.Message(); got != "Unsupported file type: .pdf" {
		t.Fatalf("Message = %q", got)
	}
}

func TestOpen_RejectsDirectoriesAndMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "album.mp3")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := Open(dir); err == nil {
		t.Fatalf("Open(dir) returned nil error")
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Fatalf("Open(missing) returned nil error")
	}
	if _, err := Open("   "); err == nil {
		t.Fatalf("Open(blank) returned nil error")
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(-1); got != "-" {
		t.Fatalf("FormatBytes(-1) = %q, want -", got)
	}
	if got := FormatBytes(1024); got != "1KiB" {
		t.Fatalf("FormatBytes(1024) = %q, want 1KiB", got)
	}
	var nilFile *File
	if got := nilFile.HumanSize(); got != "-" {
		t.Fatalf("nil HumanSize = %q, want -", got)
	}
}

func TestSupportedText(t *testing.T) {
	got := SupportedText()
	want := "Supported: mp3, wav, flac, ogg, m4a, au, aiff + mp4, mov, mkv, avi, webm"
	if got != want {
		t.Fatalf("SupportedText = %q, want %q", got, want)
	}
	if len(Extensions()) != 13 {
		t.Fatalf("Extensions len = %d, want 13", len(Extensions()))
	}
}
