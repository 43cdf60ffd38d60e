package format

import (
	"path"
	"sort"
	"strings"
)

// Unsupported is returned for any extension outside the registry.
const Unsupported = ""

// registry maps lowercase extension → format tag
var registry = map[string]string{
	".mp4":  "MP4",
	".mov":  "QuickTime",
	".avi":  "AVI",
	".mkv":  "Matroska",
	".wmv":  "Windows Media",
	".flv":  "Flash Video",
	".webm": "WebM",
	".m4v":  "iTunes Video",
	".3gp":  "3GPP",
	".mts":  "AVCHD",
	".m2ts": "Blu-ray",
	".vob":  "DVD Video",
}

// Classify returns the format tag for a file name or storage key, and false
// when the extension is not supported. Matching is case-insensitive.
func Classify(name string) (string, bool) {
	tag, ok := registry[Extension(name)]
	return tag, ok
}

// Extension returns the lowercased extension of the last path element,
// including the leading dot.
func Extension(name string) string {
	return strings.ToLower(path.Ext(path.Base(name)))
}

// Supported lists the registered extensions in sorted order.
func Supported() []string {
	exts := make([]string, 0, len(registry))
	for ext := range registry {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Lookup returns the tag for an extension with or without the leading dot.
func Lookup(ext string) (string, bool) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	tag, ok := registry[ext]
	return tag, ok
}
