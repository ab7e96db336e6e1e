package format

import (
	"net/url"
	"path"
	"strings"
)

const DefaultExtension = ".jpg"

func AllowedExtensions() map[string]struct{} {
	return map[string]struct{}{
		".jpg":  {},
		".jpeg": {},
		".png":  {},
		".gif":  {},
		".webp": {},
		".bmp":  {},
	}
}

type Resolver struct {
	Allowed map[string]struct{}
	Default string
}

type Resolution struct {
	Extension string
	Document  bool
}

// Resolve derives the target file extension from a URL's path component.
// Links to document formats (PDF) are flagged instead of resolved; they are
// never fetched. Unknown or disallowed extensions fall back to the default.
func (r Resolver) Resolve(rawURL string) Resolution {
	allowed := r.Allowed
	if allowed == nil {
		allowed = AllowedExtensions()
	}
	fallback := r.Default
	if fallback == "" {
		fallback = DefaultExtension
	}

	ext := ""
	if parsed, err := url.Parse(strings.TrimSpace(rawURL)); err == nil {
		ext = strings.ToLower(path.Ext(parsed.Path))
	}

	if ext == ".pdf" || strings.Contains(strings.ToLower(rawURL), ".pdf") {
		return Resolution{Extension: ext, Document: true}
	}

	if _, ok := allowed[ext]; !ok {
		ext = fallback
	}
	return Resolution{Extension: ext}
}
