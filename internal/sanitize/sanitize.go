package sanitize

import (
	"regexp"
	"strings"
)

var (
	illegalChars = regexp.MustCompile(`[^A-Za-z0-9.\-+_]`)
	dotsOnly     = regexp.MustCompile(`^\.+$`)
)

// Filename returns a name that is safe to use as the last element of a path.
// Directory components (POSIX or Windows style) are stripped and every
// character outside [A-Za-z0-9.-+_] becomes an underscore. Case is preserved.
func Filename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = illegalChars.ReplaceAllString(name, "_")
	if dotsOnly.MatchString(name) {
		name = "_" + name
	}
	if name == "" {
		return "unnamed"
	}
	return name
}
