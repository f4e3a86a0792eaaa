package upload

import (
	"fmt"
	"os"
	"regexp"
	"sync/atomic"
	"time"

	"upload-column/internal/sanitize"
)

var (
	tempValuePattern = regexp.MustCompile(`^((?:\d+\.)+\d+)/([^/;]+)(?:;([^/;]+))?$`)
	tempIDPattern    = regexp.MustCompile(`^(?:\d+\.)+\d+$`)

	tempSeq atomic.Uint64
)

// NewTempID returns "<unix>.<usec>.<pid>.<seq>". The sequence keeps ids issued
// by one process within the same microsecond apart.
func NewTempID() string {
	return newTempID(time.Now())
}

func newTempID(now time.Time) string {
	return fmt.Sprintf("%d.%d.%d.%d", now.Unix(), now.Nanosecond()/1000, os.Getpid(), tempSeq.Add(1))
}

// IsTempID reports whether s has the dotted numeric form of a temp id.
func IsTempID(s string) bool {
	return tempIDPattern.MatchString(s)
}

// TempIDTime extracts the creation time encoded in a temp id.
func TempIDTime(id string) (time.Time, bool) {
	var sec, usec int64
	if _, err := fmt.Sscanf(id, "%d.%d", &sec, &usec); err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, usec*1000), true
}

// FormatToken serializes a staged file reference.
func FormatToken(tempID, storedName, originalName string) string {
	if originalName == "" {
		return tempID + "/" + storedName
	}
	return tempID + "/" + storedName + ";" + originalName
}

// ParseToken is the inverse of FormatToken. Names that would escape the temp
// directory are rejected along with anything that does not fit the grammar.
func ParseToken(token string) (tempID, storedName, originalName string, err error) {
	m := tempValuePattern.FindStringSubmatch(token)
	if m == nil || sanitize.Filename(m[2]) != m[2] {
		return "", "", "", &TemporaryPathMalformedError{Token: token}
	}
	return m[1], m[2], m[3], nil
}
