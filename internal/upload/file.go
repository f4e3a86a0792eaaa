package upload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"upload-column/internal/extension"
	"upload-column/internal/sanitized"
)

type State int

const (
	StateTemp State = iota + 1
	StateSaved
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateTemp:
		return "temp"
	case StateSaved:
		return "saved"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// File is an upload attached to one attribute of a host record, together with
// its versions. A primary File owns its versions; a version never has
// versions of its own.
type File struct {
	opts *Options
	host Host
	attr string

	suffix           string
	basename         string
	ext              string
	originalFilename string
	contentType      string

	tempID string
	// dir and name are pinned once the file has a permanent location so a
	// later change on the host does not move it.
	dir     string
	name    string
	newFile bool
	state   State

	versions []*File
}

// Upload stages src in a fresh temp directory and derives the configured
// versions. An empty source yields (nil, nil).
func Upload(src any, host Host, attr string, opts Options) (*File, error) {
	if s, ok := src.(string); ok && s != "" {
		return nil, &UploadNotMultipartError{Value: s}
	}
	if err := ValidateVersions(opts.Versions); err != nil {
		return nil, err
	}
	o := opts.withDefaults()

	sf, err := sanitized.New(o.Fs, src, o.sanitizedOptions())
	if err != nil {
		return nil, err
	}
	if sf.IsEmpty() {
		return nil, nil
	}

	if o.ValidateIntegrity {
		if len(o.Extensions) == 0 {
			return nil, ErrNoExtensions
		}
		if !o.Extensions.Contains(sf.Extension()) {
			return nil, &IntegrityError{Extension: sf.Extension(), Message: "has an extension that is not allowed."}
		}
	}

	f := &File{
		opts:             &o,
		host:             host,
		attr:             attr,
		basename:         sf.Basename(),
		ext:              sf.Extension(),
		originalFilename: sf.OriginalFilename(),
		contentType:      sf.ContentType(),
		tempID:           NewTempID(),
		newFile:          true,
		state:            StateTemp,
	}
	f.dir = filepath.Join(f.TmpDir(), f.tempID)
	log := o.Logger.With("component", "upload", "attr", attr, "temp_id", f.tempID)

	if err := f.stage(sf); err != nil {
		f.discardTemp()
		return nil, err
	}

	if hook, ok := host.(AfterUploadHook); ok {
		hook.AfterUpload(attr, f)
	}
	log.Debug("upload staged", "file", f.ActualFilename(), "versions", len(f.versions))
	return f, nil
}

func (f *File) stage(sf *sanitized.File) error {
	o := f.opts
	if err := sf.MoveTo(f.Path()); err != nil {
		return fmt.Errorf("stage %s: %w", f.ActualFilename(), err)
	}

	if o.ForceFormat != "" {
		if err := Convert(o.ForceFormat).apply(o.Manipulator, f.Path()); err != nil && !errors.Is(err, ErrNoManipulator) {
			return err
		}
	}
	if err := o.Process.apply(o.Manipulator, f.Path()); err != nil {
		return err
	}

	for _, v := range o.Versions {
		vf := f.newVersion(v.Name)
		if _, err := sf.CopyTo(vf.Path()); err != nil {
			return fmt.Errorf("copy version %s: %w", v.Name, err)
		}
		if err := v.Instruction.apply(o.Manipulator, vf.Path()); err != nil {
			if !errors.Is(err, ErrManipulation) {
				return err
			}
			o.Logger.Warn("dropping version", "component", "upload", "attr", f.attr, "version", v.Name, "error", err)
			if rmErr := o.Fs.Remove(vf.Path()); rmErr != nil && !os.IsNotExist(rmErr) {
				return fmt.Errorf("remove version %s: %w", v.Name, rmErr)
			}
			continue
		}
		f.versions = append(f.versions, vf)
	}
	return nil
}

func (f *File) discardTemp() {
	if f.tempID == "" {
		return
	}
	if err := f.opts.Fs.RemoveAll(f.dir); err != nil {
		f.opts.Logger.Warn("remove temp dir", "component", "upload", "dir", f.dir, "error", err)
	}
}

// Retrieve rebuilds a saved file from the name stored on the host. It does no
// I/O.
func Retrieve(storedName string, host Host, attr string, opts Options) (*File, error) {
	if storedName == "" {
		return nil, nil
	}
	if err := ValidateVersions(opts.Versions); err != nil {
		return nil, err
	}
	o := opts.withDefaults()
	base, ext := extension.Split(storedName, o.Extensions)
	f := &File{
		opts:     &o,
		host:     host,
		attr:     attr,
		basename: base,
		ext:      strings.ToLower(ext),
		state:    StateSaved,
	}
	f.initVersions()
	for _, file := range f.family() {
		file.pin(f.StoreDir())
	}
	return f, nil
}

// RetrieveTemp rebuilds a staged file from its temp token.
func RetrieveTemp(token string, host Host, attr string, opts Options) (*File, error) {
	if token == "" {
		return nil, nil
	}
	tempID, name, original, err := ParseToken(token)
	if err != nil {
		return nil, err
	}
	if err := ValidateVersions(opts.Versions); err != nil {
		return nil, err
	}
	o := opts.withDefaults()
	base, ext := extension.Split(name, o.Extensions)
	f := &File{
		opts:             &o,
		host:             host,
		attr:             attr,
		basename:         base,
		ext:              strings.ToLower(ext),
		originalFilename: original,
		tempID:           tempID,
		state:            StateTemp,
	}
	f.dir = filepath.Join(f.TmpDir(), tempID)
	f.initVersions()
	// Versions dropped while staging have no temp file.
	kept := f.versions[:0]
	for _, v := range f.versions {
		if v.Exists() {
			kept = append(kept, v)
		}
	}
	f.versions = kept
	return f, nil
}

func (f *File) newVersion(name string) *File {
	v := *f
	v.suffix = name
	v.versions = nil
	return &v
}

func (f *File) pin(dir string) {
	f.dir = dir
	f.name = f.Filename()
}

func (f *File) initVersions() {
	for _, v := range f.opts.Versions {
		f.versions = append(f.versions, f.newVersion(v.Name))
	}
}

func (f *File) Attribute() string { return f.attr }

func (f *File) Host() Host { return f.host }

func (f *File) Options() Options { return *f.opts }

// Suffix is the version name, or "" for the primary file.
func (f *File) Suffix() string { return f.suffix }

func (f *File) Basename() string { return f.basename }

func (f *File) Extension() string { return f.ext }

func (f *File) OriginalFilename() string { return f.originalFilename }

func (f *File) State() State { return f.state }

// IsNew reports whether the file was uploaded during this request.
func (f *File) IsNew() bool { return f.newFile }

func (f *File) IsTemp() bool { return f.tempID != "" && f.state == StateTemp }

func (f *File) TempID() string { return f.tempID }

// ActualFilename is basename[-suffix][.ext], ignoring any filename strategy.
// This is the value kept on the host record.
func (f *File) ActualFilename() string {
	b := f.basename
	if f.suffix != "" {
		b += "-" + f.suffix
	}
	return extension.Join(b, f.ext)
}

// Filename is the permanent name: the filename hook or strategy when one
// yields a value, otherwise ActualFilename. Strategies that cannot see the
// file get the version suffix spliced in before the extension.
func (f *File) Filename() string {
	if f.name != "" {
		return f.name
	}
	if hook, ok := f.host.(FilenameHook); ok {
		if name := hook.Filename(f.attr, f); name != "" {
			return name
		}
	}
	name := f.opts.Filename.Resolve(f.host, f)
	if name == "" {
		return f.ActualFilename()
	}
	if f.suffix != "" && f.opts.Filename.Kind() != StrategyHostFile {
		ext := filepath.Ext(name)
		return strings.TrimSuffix(name, ext) + "-" + f.suffix + ext
	}
	return name
}

func (f *File) relativeTmpDir() string {
	if hook, ok := f.host.(TmpDirHook); ok {
		if dir := hook.TmpDir(f.attr, f); dir != "" {
			return dir
		}
	}
	return f.opts.TmpDir.Resolve(f.host, f)
}

func (f *File) relativeStoreDir() string {
	if hook, ok := f.host.(StoreDirHook); ok {
		if dir := hook.StoreDir(f.attr, f); dir != "" {
			return dir
		}
	}
	return f.opts.StoreDir.Resolve(f.host, f)
}

// TmpDir is the absolute directory temp ids are created under.
func (f *File) TmpDir() string { return f.expand(f.relativeTmpDir()) }

// StoreDir is the absolute directory saved files live in.
func (f *File) StoreDir() string { return f.expand(f.relativeStoreDir()) }

func (f *File) expand(dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(f.opts.RootDir, dir)
}

// Dir is the directory currently holding the file.
func (f *File) Dir() string {
	if f.dir != "" {
		return f.dir
	}
	return f.StoreDir()
}

// Path is the absolute location of the file.
func (f *File) Path() string {
	if f.IsTemp() {
		return filepath.Join(f.Dir(), f.ActualFilename())
	}
	return filepath.Join(f.Dir(), f.Filename())
}

// RelativePath is Path relative to the root directory. Files outside the root
// keep their absolute path.
func (f *File) RelativePath() string {
	p := f.Path()
	rel, err := filepath.Rel(f.opts.RootDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return rel
}

// RelativeDir is Dir relative to the root directory.
func (f *File) RelativeDir() string {
	return filepath.Dir(f.RelativePath())
}

// URL is the web root joined with the relative path.
func (f *File) URL() string {
	return f.opts.WebRoot + "/" + strings.ReplaceAll(f.RelativePath(), "\\", "/")
}

func (f *File) PublicPath() string { return f.URL() }

func (f *File) String() string { return f.URL() }

// TempValue is the token that lets a later request pick the staged file up
// again. It is empty once the file is saved.
func (f *File) TempValue() string {
	if !f.IsTemp() {
		return ""
	}
	return FormatToken(f.tempID, f.ActualFilename(), f.originalFilename)
}

// Versions returns the derived files in declaration order.
func (f *File) Versions() []*File {
	out := make([]*File, len(f.versions))
	copy(out, f.versions)
	return out
}

func (f *File) Version(name string) (*File, bool) {
	for _, v := range f.versions {
		if v.suffix == name {
			return v, true
		}
	}
	return nil, false
}

func (f *File) Exists() bool {
	info, err := f.opts.Fs.Stat(f.Path())
	return err == nil && !info.IsDir()
}

// Size is the byte length on disk, 0 when the file is missing.
func (f *File) Size() int64 {
	info, err := f.opts.Fs.Stat(f.Path())
	if err != nil {
		return 0
	}
	return info.Size()
}

func (f *File) ContentType() string {
	if f.contentType != "" && f.suffix == "" {
		return f.contentType
	}
	if ct := extension.TypeByExtension(f.ext); ct != "" {
		return ct
	}
	return f.contentType
}

// IsImage reports whether the extension names a raster format.
func (f *File) IsImage() bool { return extension.IsImage(f.ext) }

// Dimensions asks the manipulator for pixel dimensions when it can measure.
func (f *File) Dimensions() (width, height int, ok bool) {
	m, isMeasurer := f.opts.Manipulator.(Measurer)
	if !isMeasurer || !f.IsImage() {
		return 0, 0, false
	}
	w, h, err := m.Dimensions(f.Path())
	if err != nil {
		return 0, 0, false
	}
	return w, h, true
}

// Bytes reads the file contents.
func (f *File) Bytes() ([]byte, error) {
	return afero.ReadFile(f.opts.Fs, f.Path())
}
