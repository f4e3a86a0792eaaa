package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"upload-column/internal/sanitized"
	"upload-column/internal/uploader"
)

// Save moves a staged file and its versions from the temp directory into the
// store directory. Saving a file that is not staged is a no-op. Every source
// is checked before anything moves; versions move before the primary and each
// file is marked saved as soon as it is in place, so a retry only moves what
// is left.
func (f *File) Save(ctx context.Context) error {
	if f == nil || !f.IsTemp() {
		return nil
	}
	o := f.opts
	tempDir := f.dir
	storeDir := f.StoreDir()

	pending := make([]*File, 0, len(f.versions)+1)
	for _, file := range append(append([]*File(nil), f.versions...), f) {
		if file.state == StateSaved {
			continue
		}
		if !file.Exists() {
			return fmt.Errorf("save %s: %s: %w", file.ActualFilename(), file.Path(), os.ErrNotExist)
		}
		pending = append(pending, file)
	}

	for _, file := range pending {
		src := file.Path()
		dst := filepath.Join(storeDir, file.Filename())
		if err := moveFile(o, src, dst); err != nil {
			return fmt.Errorf("save %s: %w", file.ActualFilename(), err)
		}
		file.pin(storeDir)
		file.tempID = ""
		file.newFile = false
		file.state = StateSaved
	}
	removeIfEmpty(o.Fs, tempDir)

	o.Logger.Info("upload saved", "component", "upload", "attr", f.attr, "path", f.Path(), "versions", len(f.versions))
	return f.mirror(ctx)
}

// Delete removes the file, its versions and the directory when it ends up
// empty. Files that are already gone are not an error.
func (f *File) Delete(ctx context.Context) error {
	return f.DeleteExcept(ctx)
}

// DeleteExcept is Delete but leaves the given paths alone, which matters when
// a replacement was saved under the same name.
func (f *File) DeleteExcept(ctx context.Context, keep ...string) error {
	if f == nil || f.state == StateDeleted {
		return nil
	}
	kept := make(map[string]struct{}, len(keep))
	for _, p := range keep {
		kept[filepath.Clean(p)] = struct{}{}
	}
	o := f.opts
	dir := f.Dir()
	var objects []string
	for _, file := range f.family() {
		p := file.Path()
		if _, ok := kept[filepath.Clean(p)]; ok {
			continue
		}
		if err := o.Fs.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", p, err)
		}
		objects = append(objects, uploader.ObjectName(file.RelativePath()))
	}
	removeIfEmpty(o.Fs, dir)
	wasSaved := f.state == StateSaved
	for _, file := range f.family() {
		file.state = StateDeleted
	}
	o.Logger.Info("upload deleted", "component", "upload", "attr", f.attr, "dir", dir)

	if !wasSaved {
		return nil
	}
	remover, ok := o.Mirror.(uploader.Remover)
	if !ok {
		return nil
	}
	for _, name := range objects {
		if err := remover.Remove(ctx, name); err != nil {
			return fmt.Errorf("remove mirrored %s: %w", name, err)
		}
	}
	return nil
}

// Paths lists the primary path followed by every version path.
func (f *File) Paths() []string {
	var out []string
	for _, file := range f.family() {
		out = append(out, file.Path())
	}
	return out
}

func (f *File) family() []*File {
	return append([]*File{f}, f.versions...)
}

func (f *File) mirror(ctx context.Context) error {
	if f.opts.Mirror == nil {
		return nil
	}
	for _, file := range f.family() {
		data, err := file.Bytes()
		if err != nil {
			return fmt.Errorf("read %s for mirror: %w", file.Path(), err)
		}
		name := uploader.ObjectName(file.RelativePath())
		if _, err := f.opts.Mirror.Upload(ctx, name, data, file.ContentType()); err != nil {
			return fmt.Errorf("mirror %s: %w", name, err)
		}
	}
	return nil
}

func moveFile(o *Options, src, dst string) error {
	sf, err := sanitized.New(o.Fs, src, sanitized.Options{Permissions: o.Permissions})
	if err != nil {
		return err
	}
	if err := sf.MoveTo(dst); err != nil {
		if errors.Is(err, sanitized.ErrEmpty) {
			return fmt.Errorf("%s: %w", src, os.ErrNotExist)
		}
		return err
	}
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	if err := o.Fs.Remove(src); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func removeIfEmpty(fs afero.Fs, dir string) {
	if empty, err := afero.IsEmpty(fs, dir); err == nil && empty {
		_ = fs.Remove(dir)
	}
}
