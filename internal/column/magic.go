package column

import (
	"slices"
	"strconv"
	"strings"

	"upload-column/internal/upload"
)

// Host columns named "<attr>_<predicate>" are kept in sync with the attached
// file.
var magicPredicates = map[string]func(*upload.File) string{
	"size":              func(f *upload.File) string { return strconv.FormatInt(f.Size(), 10) },
	"path":              (*upload.File).Path,
	"relative_path":     (*upload.File).RelativePath,
	"public_path":       (*upload.File).URL,
	"url":               (*upload.File).URL,
	"filename":          (*upload.File).Filename,
	"actual_filename":   (*upload.File).ActualFilename,
	"basename":          (*upload.File).Basename,
	"extension":         (*upload.File).Extension,
	"original_filename": (*upload.File).OriginalFilename,
	"mime_type":         (*upload.File).ContentType,
	"content_type":      (*upload.File).ContentType,
	"width": func(f *upload.File) string {
		if w, _, ok := f.Dimensions(); ok {
			return strconv.Itoa(w)
		}
		return ""
	},
	"height": func(f *upload.File) string {
		if _, h, ok := f.Dimensions(); ok {
			return strconv.Itoa(h)
		}
		return ""
	},
}

// MagicColumns lists the companion host columns of attr in sorted order.
func MagicColumns(attr string) []string {
	out := make([]string, 0, len(magicPredicates))
	for predicate := range magicPredicates {
		out = append(out, attr+"_"+predicate)
	}
	slices.Sort(out)
	return out
}

func (h *Handle) refreshMagic() {
	prefix := h.attr + "_"
	for _, col := range h.a.host.ColumnNames() {
		predicate, ok := strings.CutPrefix(col, prefix)
		if !ok {
			continue
		}
		fn, ok := magicPredicates[predicate]
		if !ok {
			continue
		}
		value := ""
		if h.file != nil {
			value = fn(h.file)
		}
		h.a.host.Set(col, value)
	}
}
