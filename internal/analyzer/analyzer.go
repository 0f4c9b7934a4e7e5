// Package analyzer finds the media files under a target path and the sidecar
// files (subtitles, nfo, artwork) that travel with each of them.
package analyzer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Kind classifies a file found next to media.
type Kind int

const (
	KindOther Kind = iota
	KindMedia
	KindSample
	KindExtra
	KindSubtitle
	KindSidecar
)

func (k Kind) String() string {
	switch k {
	case KindMedia:
		return "media"
	case KindSample:
		return "sample"
	case KindExtra:
		return "extra"
	case KindSubtitle:
		return "subtitle"
	case KindSidecar:
		return "sidecar"
	default:
		return "other"
	}
}

type FileInfo struct {
	Path string
	Size int64
	Name string
}

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".mov": true,
	".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
	".mpg": true, ".mpeg": true, ".m2ts": true, ".ts": true,
	".vob": true, ".divx": true, ".rmvb": true, ".iso": true,
}

var subtitleExtensions = map[string]bool{
	".srt": true, ".sub": true, ".idx": true, ".ass": true,
	".ssa": true, ".vtt": true, ".smi": true, ".sup": true,
}

var sidecarExtensions = map[string]bool{
	".nfo": true, ".jpg": true, ".jpeg": true, ".png": true,
	".webp": true, ".tbn": true, ".xml": true,
}

// IsVideoFile reports whether name has a media extension.
func IsVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

const sampleSizeThreshold = 100 * 1024 * 1024

var samplePatterns = regexp.MustCompile(`(?i)(^|[.\-_ ])sample([.\-_ ]|$)`)

var extraPatterns = regexp.MustCompile(`(?i)(^|[.\-_ ])(trailer|teaser|featurette|behind.?the.?scenes|deleted.?scene|interview|making.?of)([.\-_ ]|$)`)

// Classify decides what a file is from its name and size.
func Classify(file FileInfo) Kind {
	ext := strings.ToLower(filepath.Ext(file.Name))
	switch {
	case videoExtensions[ext]:
		if file.Size <= sampleSizeThreshold && samplePatterns.MatchString(file.Name) {
			return KindSample
		}
		if extraPatterns.MatchString(file.Name) {
			return KindExtra
		}
		return KindMedia
	case subtitleExtensions[ext]:
		return KindSubtitle
	case sidecarExtensions[ext]:
		return KindSidecar
	default:
		return KindOther
	}
}

// ScanMedia walks root and returns every primary media file in lexical order.
// Samples, extras and hidden directories are skipped. root may be a single file.
func ScanMedia(ctx context.Context, root string) ([]FileInfo, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		f := FileInfo{Path: root, Size: info.Size(), Name: info.Name()}
		if Classify(f) == KindMedia {
			return []FileInfo{f}, nil
		}
		return nil, nil
	}

	var files []FileInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		f := FileInfo{Path: path, Size: fi.Size(), Name: d.Name()}
		if Classify(f) == KindMedia {
			files = append(files, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Stem is the file name without its extension.
func Stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// FindSidecars returns the subtitle and sidecar files in the media file's
// directory whose name starts with the media stem followed by '.', '-' or '_'.
func FindSidecars(mediaPath string) ([]string, error) {
	dir := filepath.Dir(mediaPath)
	stem := Stem(filepath.Base(mediaPath))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) <= len(stem) || !strings.HasPrefix(name, stem) {
			continue
		}
		if !strings.ContainsRune(".-_", rune(name[len(stem)])) {
			continue
		}
		switch Classify(FileInfo{Name: name}) {
		case KindSubtitle, KindSidecar:
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

// RenameSidecar swaps oldStem for newStem at the start of a sidecar name, so
// "Movie.2020.en.srt" follows "Movie.2020.mkv" to "Movie (2020).en.srt".
func RenameSidecar(sidecarName, oldStem, newStem string) string {
	if !strings.HasPrefix(sidecarName, oldStem) {
		return sidecarName
	}
	return newStem + sidecarName[len(oldStem):]
}
