package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// AcceptedFormats is the picker hint for uploads. It is advisory; the
// service decides what it can decode.
var AcceptedFormats = []string{".mp3", ".wav", ".m4a", ".ogg", ".flac"}

var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".webm": "audio/webm",
}

// FileRef points at a user-selected file on disk. The contents are read at
// submission time.
type FileRef struct {
	Path        string
	Name        string
	Size        int64
	ContentType string
}

func (f FileRef) Accepted() bool {
	return IsAccepted(f.Name)
}

func IsAccepted(name string) bool {
	return slices.Contains(AcceptedFormats, strings.ToLower(filepath.Ext(name)))
}

func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// SelectFile resolves a picker result into a FileRef.
func SelectFile(path string) (FileRef, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return FileRef{}, ErrNoFileSelected
	}
	info, err := os.Stat(path)
	if err != nil {
		return FileRef{}, fmt.Errorf("select file: %w", err)
	}
	if info.IsDir() {
		return FileRef{}, fmt.Errorf("select file: %s is a directory", path)
	}
	name := filepath.Base(path)
	return FileRef{
		Path:        path,
		Name:        name,
		Size:        info.Size(),
		ContentType: ContentType(name),
	}, nil
}
