package upload

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"upload-column/internal/extension"
	"upload-column/internal/sanitized"
	"upload-column/internal/uploader"
)

type StrategyKind int

const (
	StrategyUnset StrategyKind = iota
	StrategyStatic
	StrategyHost
	StrategyHostFile
)

// Strategy computes a directory or filename either as a constant or from the
// host record and the file being placed.
type Strategy struct {
	kind   StrategyKind
	value  string
	hostFn func(Host) string
	fileFn func(Host, *File) string
}

func Static(value string) Strategy {
	return Strategy{kind: StrategyStatic, value: value}
}

func HostFunc(fn func(Host) string) Strategy {
	return Strategy{kind: StrategyHost, hostFn: fn}
}

func HostFileFunc(fn func(Host, *File) string) Strategy {
	return Strategy{kind: StrategyHostFile, fileFn: fn}
}

func (s Strategy) Kind() StrategyKind { return s.kind }

func (s Strategy) IsZero() bool { return s.kind == StrategyUnset }

// Resolve returns "" for an unset strategy.
func (s Strategy) Resolve(h Host, f *File) string {
	switch s.kind {
	case StrategyStatic:
		return s.value
	case StrategyHost:
		if s.hostFn == nil {
			return ""
		}
		return s.hostFn(h)
	case StrategyHostFile:
		if s.fileFn == nil {
			return ""
		}
		return s.fileFn(h, f)
	default:
		return ""
	}
}

type OldFilesPolicy string

const (
	OldFilesDelete  OldFilesPolicy = "delete"
	OldFilesReplace OldFilesPolicy = "replace"
	OldFilesKeep    OldFilesPolicy = "keep"
)

// Valid reports whether p is one of the known policies.
func (p OldFilesPolicy) Valid() bool {
	switch p {
	case OldFilesDelete, OldFilesReplace, OldFilesKeep:
		return true
	}
	return false
}

// Options is the fully resolved configuration of one upload attribute. It is
// treated as read-only once a File holds it.
type Options struct {
	RootDir  string
	StoreDir Strategy
	TmpDir   Strategy
	Filename Strategy

	Versions    []Version
	Process     Instruction
	Manipulator Manipulator
	ForceFormat string

	Extensions        extension.Set
	MimeExtensions    map[string]string
	FixFileExtensions bool
	ValidateIntegrity bool
	DetectContentType bool
	Permissions       os.FileMode

	WebRoot  string
	OldFiles OldFilesPolicy

	Fs     afero.Fs
	Logger *slog.Logger
	Mirror uploader.Uploader
}

// AttributeStoreDir stores files under a directory named after the attribute.
func AttributeStoreDir() Strategy {
	return HostFileFunc(func(_ Host, f *File) string { return f.Attribute() })
}

func (o Options) withDefaults() Options {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.RootDir == "" {
		o.RootDir = "public"
	}
	if _, isOs := o.Fs.(*afero.OsFs); isOs && !filepath.IsAbs(o.RootDir) {
		if abs, err := filepath.Abs(o.RootDir); err == nil {
			o.RootDir = abs
		}
	}
	o.RootDir = filepath.Clean(o.RootDir)
	if o.StoreDir.IsZero() {
		o.StoreDir = AttributeStoreDir()
	}
	if o.TmpDir.IsZero() {
		o.TmpDir = Static("tmp")
	}
	if o.Permissions == 0 {
		o.Permissions = 0o644
	}
	if o.OldFiles == "" {
		o.OldFiles = OldFilesDelete
	}
	if o.MimeExtensions == nil {
		o.MimeExtensions = extension.DefaultMimeExtensions()
	}
	o.WebRoot = NormalizeWebRoot(o.WebRoot)
	return o
}

// NormalizeWebRoot adds a leading slash and drops trailing ones. The empty
// string stays empty.
func NormalizeWebRoot(root string) string {
	root = strings.TrimRight(strings.ReplaceAll(root, "\\", "/"), "/")
	if root == "" {
		return ""
	}
	if !strings.HasPrefix(root, "/") && !strings.Contains(root, "://") {
		root = "/" + root
	}
	return root
}

func (o Options) sanitizedOptions() sanitized.Options {
	return sanitized.Options{
		Extensions:        o.Extensions,
		MimeExtensions:    o.MimeExtensions,
		FixFileExtensions: o.FixFileExtensions,
		DetectContentType: o.DetectContentType,
		ForceFormat:       o.ForceFormat,
		Permissions:       o.Permissions,
	}
}

// StaticTmpDir returns the absolute temp directory when it does not depend on
// the host.
func (o Options) StaticTmpDir() (string, bool) {
	if o.TmpDir.Kind() != StrategyStatic {
		return "", false
	}
	dir := o.TmpDir.value
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(o.RootDir, dir)
	}
	return filepath.Clean(dir), true
}
