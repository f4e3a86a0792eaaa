// Package catalog declares the record kinds served by the service and their
// upload columns.
package catalog

import (
	"slices"

	"upload-column/internal/column"
	"upload-column/internal/upload"
)

// Registries builds one column registry per record kind. Files of one record
// live under <attr>/<record id>/.
func Registries(opts ...column.Option) (map[string]*column.Registry, error) {
	perRecord := func(h upload.Host, attr string) string {
		id, _ := h.Get("id")
		return attr + "/" + id
	}

	user := column.NewRegistry(opts...)
	if err := user.RegisterImage("avatar", column.Config{
		StoreDir: upload.HostFunc(func(h upload.Host) string { return perRecord(h, "avatar") }),
		Versions: []upload.Version{
			{Name: "thumb", Instruction: upload.Resize(200, 200)},
			{Name: "square", Instruction: upload.CropResize(64, 64)},
		},
		Process:           column.Instruction(upload.Resize(1600, 1600)),
		ValidateIntegrity: column.Bool(true),
	}); err != nil {
		return nil, err
	}

	document := column.NewRegistry(opts...)
	if err := document.Register("attachment", column.Config{
		StoreDir:          upload.HostFunc(func(h upload.Host) string { return perRecord(h, "attachment") }),
		FixFileExtensions: column.Bool(true),
	}); err != nil {
		return nil, err
	}
	if err := document.RegisterImage("cover", column.Config{
		StoreDir:    upload.HostFunc(func(h upload.Host) string { return perRecord(h, "cover") }),
		ForceFormat: "jpg",
		Versions:    []upload.Version{{Name: "thumb", Instruction: upload.Resize(320, 320)}},
	}); err != nil {
		return nil, err
	}

	return map[string]*column.Registry{"user": user, "document": document}, nil
}

// TmpDirs merges the temp directories of every kind.
func TmpDirs(kinds map[string]*column.Registry) []string {
	var dirs []string
	seen := map[string]bool{}
	for _, reg := range kinds {
		for _, dir := range reg.TmpDirs() {
			if !seen[dir] {
				seen[dir] = true
				dirs = append(dirs, dir)
			}
		}
	}
	slices.Sort(dirs)
	return dirs
}
