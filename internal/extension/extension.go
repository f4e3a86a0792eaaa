// Package extension splits filenames into basename and extension and maps
// between content types and extensions.
package extension

import (
	"regexp"
	"sort"
	"strings"
)

var (
	doubleExt = regexp.MustCompile(`^(.+)\.([^.]{1,3}\.[^.]{1,4})$`)
	singleExt = regexp.MustCompile(`^(.+)\.([^.]+)$`)
)

// Set is a case-insensitive extension allow-list.
type Set map[string]struct{}

func NewSet(exts ...string) Set {
	s := make(Set, len(exts))
	for _, e := range exts {
		s[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	return s
}

func (s Set) Contains(ext string) bool {
	if ext == "" {
		return false
	}
	_, ok := s[strings.ToLower(ext)]
	return ok
}

// Slice returns the members in sorted order.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Split separates name into basename and extension. A compound extension such
// as "tar.gz" is tried before a single one. A candidate is only accepted when
// allow contains it; an empty allow-list accepts any candidate. When nothing is
// accepted the whole name is the basename.
func Split(name string, allow Set) (basename, ext string) {
	for _, re := range []*regexp.Regexp{doubleExt, singleExt} {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if len(allow) == 0 || allow.Contains(m[2]) {
			return m[1], m[2]
		}
	}
	return name, ""
}

// Join is the inverse of Split.
func Join(basename, ext string) string {
	if ext == "" {
		return basename
	}
	return basename + "." + ext
}

// Options controls Resolve.
type Options struct {
	FixFileExtensions bool
	MimeExtensions    map[string]string
	ForceFormat       string
}

// Resolve picks the final extension for a file whose declared extension is ext
// and whose detected content type is contentType. The returned content type is
// the one matching the final extension when the extension was rewritten.
func Resolve(ext, contentType string, opts Options) (string, string) {
	ext = strings.ToLower(ext)
	contentType = BaseType(contentType)
	if opts.FixFileExtensions && contentType != "" {
		if mapped, ok := opts.MimeExtensions[contentType]; ok && mapped != "" {
			ext = mapped
		}
	}
	if opts.ForceFormat != "" {
		ext = strings.ToLower(strings.TrimPrefix(opts.ForceFormat, "."))
		if ct := TypeByExtension(ext); ct != "" {
			contentType = ct
		}
	}
	return ext, contentType
}

// BaseType strips parameters such as "; charset=utf-8" and lower-cases.
func BaseType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// TypeByExtension returns the canonical content type for ext, or "".
func TypeByExtension(ext string) string {
	return contentTypes[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

// IsImage reports whether ext is one of the raster formats the manipulator
// understands.
func IsImage(ext string) bool {
	return ImageExtensions().Contains(ext)
}
