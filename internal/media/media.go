// Package media describes the files a user can submit for classification.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
)

// Kind distinguishes audio payloads from video payloads.
type Kind string

const (
	KindAudio   Kind = "audio"
	KindVideo   Kind = "video"
	KindUnknown Kind = ""
)

var (
	audioExtensions = []string{".mp3", ".wav", ".flac", ".ogg", ".m4a", ".au", ".aiff", ".aif"}
	videoExtensions = []string{".mp4", ".mov", ".mkv", ".avi", ".webm"}
)

// ErrUnsupported matches the error Open returns for an extension that is not
// accepted.
var ErrUnsupported = errors.New("unsupported file type")

// UnsupportedError names the rejected extension.
type UnsupportedError struct {
	Ext string
}

func (e *UnsupportedError) Error() string {
	return "unsupported file type: " + e.Ext
}

// Is lets errors.Is match ErrUnsupported.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

// Message is the text shown to the user.
func (e *UnsupportedError) Message() string {
	return "Unsupported file type: " + e.Ext
}

// File is an immutable handle to a payload on disk. Size is captured when the
// file is opened and is what uploads report progress against.
type File struct {
	Path string
	Name string
	Size int64
}

// Open stats path and returns a File when it names a regular file with an
// accepted extension.
func Open(path string) (*File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("path is empty")
	}
	info, err := os.Stat(trimmed)
	if err != nil {
		return nil, fmt.Errorf("stat media: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", trimmed)
	}
	name := filepath.Base(trimmed)
	if KindOf(name) == KindUnknown {
		return nil, &UnsupportedError{Ext: Ext(name)}
	}
	return &File{Path: trimmed, Name: name, Size: info.Size()}, nil
}

// Reader opens the payload for reading. Each call returns an independent reader.
func (f *File) Reader() (io.ReadCloser, error) {
	if f == nil {
		return nil, fmt.Errorf("file is nil")
	}
	return os.Open(f.Path)
}

// Kind reports whether the file is audio or video.
func (f *File) Kind() Kind {
	if f == nil {
		return KindUnknown
	}
	return KindOf(f.Name)
}

// HumanSize renders Size with binary units, e.g. "4.2MiB".
func (f *File) HumanSize() string {
	if f == nil {
		return "-"
	}
	return FormatBytes(f.Size)
}

// FormatBytes renders a byte count with binary units.
func FormatBytes(n int64) string {
	if n < 0 {
		return "-"
	}
	return units.BytesSize(float64(n))
}

// Ext returns the lower-cased extension of name, including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
}

// KindOf classifies a file name by extension.
func KindOf(name string) Kind {
	ext := Ext(name)
	for _, candidate := range audioExtensions {
		if ext == candidate {
			return KindAudio
		}
	}
	for _, candidate := range videoExtensions {
		if ext == candidate {
			return KindVideo
		}
	}
	return KindUnknown
}

// Supported reports whether name carries an accepted extension.
func Supported(name string) bool {
	return KindOf(name) != KindUnknown
}

// Extensions returns every accepted extension, audio first.
func Extensions() []string {
	out := make([]string, 0, len(audioExtensions)+len(videoExtensions))
	out = append(out, audioExtensions...)
	return append(out, videoExtensions...)
}

// SupportedText is the one-line hint shown next to the file chooser.
func SupportedText() string {
	trim := func(exts []string) string {
		names := make([]string, 0, len(exts))
		for _, e := range exts {
			if e == ".aif" {
				continue
			}
			names = append(names, strings.TrimPrefix(e, "."))
		}
		return strings.Join(names, ", ")
	}
	return "Supported: " + trim(audioExtensions) + " + " + trim(videoExtensions)
}
