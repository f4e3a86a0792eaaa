// Package column binds upload attributes to host records: per attribute
// configuration, a registry of attributes and per record handles that drive
// the upload lifecycle from the host's save and destroy hooks.
package column

import (
	"os"
	"path/filepath"

	"upload-column/internal/extension"
	"upload-column/internal/upload"
)

// Config is a partial attribute configuration. Unset fields (zero strategy,
// nil pointer, nil slice or map, empty string) inherit from the layer below.
type Config struct {
	RootDir  string
	StoreDir upload.Strategy
	TmpDir   upload.Strategy
	Filename upload.Strategy

	Versions    []upload.Version
	Process     *upload.Instruction
	Manipulator upload.Manipulator
	ForceFormat string

	// Extensions is the allow-list. A non-nil empty slice allows anything.
	Extensions        []string
	MimeExtensions    map[string]string
	FixFileExtensions *bool
	ValidateIntegrity *bool
	DetectContentType *bool
	Permissions       os.FileMode

	WebRoot  *string
	OldFiles upload.OldFilesPolicy
}

func Bool(v bool) *bool { return &v }

func String(v string) *string { return &v }

func Instruction(in upload.Instruction) *upload.Instruction { return &in }

// Defaults is the configuration every attribute starts from.
func Defaults() Config {
	return Config{
		RootDir:           "public",
		StoreDir:          upload.AttributeStoreDir(),
		TmpDir:            upload.Static("tmp"),
		Process:           Instruction(upload.None()),
		Extensions:        extension.DefaultExtensions().Slice(),
		MimeExtensions:    extension.DefaultMimeExtensions(),
		FixFileExtensions: Bool(false),
		ValidateIntegrity: Bool(false),
		DetectContentType: Bool(true),
		Permissions:       0o644,
		WebRoot:           String(""),
		OldFiles:          upload.OldFilesDelete,
	}
}

// ImageDefaults layers image column settings over base: image extensions and
// content types, an images root below the base root, and the /images web root.
func ImageDefaults(base Config) Config {
	root := base.RootDir
	if root == "" {
		root = Defaults().RootDir
	}
	return Merge(base, Config{
		RootDir:        filepath.Join(root, "images"),
		Extensions:     extension.ImageExtensions().Slice(),
		MimeExtensions: extension.ImageMimeExtensions(),
		WebRoot:        String("/images"),
	})
}

// Merge returns base with every field set in over replacing it.
func Merge(base, over Config) Config {
	out := base
	if over.RootDir != "" {
		out.RootDir = over.RootDir
	}
	if !over.StoreDir.IsZero() {
		out.StoreDir = over.StoreDir
	}
	if !over.TmpDir.IsZero() {
		out.TmpDir = over.TmpDir
	}
	if !over.Filename.IsZero() {
		out.Filename = over.Filename
	}
	if over.Versions != nil {
		out.Versions = over.Versions
	}
	if over.Process != nil {
		out.Process = over.Process
	}
	if over.Manipulator != nil {
		out.Manipulator = over.Manipulator
	}
	if over.ForceFormat != "" {
		out.ForceFormat = over.ForceFormat
	}
	if over.Extensions != nil {
		out.Extensions = over.Extensions
	}
	if over.MimeExtensions != nil {
		out.MimeExtensions = over.MimeExtensions
	}
	if over.FixFileExtensions != nil {
		out.FixFileExtensions = over.FixFileExtensions
	}
	if over.ValidateIntegrity != nil {
		out.ValidateIntegrity = over.ValidateIntegrity
	}
	if over.DetectContentType != nil {
		out.DetectContentType = over.DetectContentType
	}
	if over.Permissions != 0 {
		out.Permissions = over.Permissions
	}
	if over.WebRoot != nil {
		out.WebRoot = over.WebRoot
	}
	if over.OldFiles != "" {
		out.OldFiles = over.OldFiles
	}
	return out
}

// Resolve layers cfg over defaults and checks the result. It has no side
// effects; filesystem, logger and mirror are filled in by the Registry.
func Resolve(cfg, defaults Config) (upload.Options, error) {
	c := Merge(defaults, cfg)

	if c.OldFiles != "" && !c.OldFiles.Valid() {
		return upload.Options{}, &ConfigError{Field: "old_files", Value: string(c.OldFiles)}
	}
	if err := upload.ValidateVersions(c.Versions); err != nil {
		return upload.Options{}, err
	}
	if c.ValidateIntegrity != nil && *c.ValidateIntegrity && c.Extensions != nil && len(c.Extensions) == 0 {
		return upload.Options{}, upload.ErrNoExtensions
	}

	opts := upload.Options{
		RootDir:     c.RootDir,
		StoreDir:    c.StoreDir,
		TmpDir:      c.TmpDir,
		Filename:    c.Filename,
		Versions:    append([]upload.Version(nil), c.Versions...),
		Manipulator: c.Manipulator,
		ForceFormat: c.ForceFormat,
		Permissions: c.Permissions,
		OldFiles:    c.OldFiles,
	}
	if c.Process != nil {
		opts.Process = *c.Process
	}
	if c.Extensions != nil {
		opts.Extensions = extension.NewSet(c.Extensions...)
	}
	if c.MimeExtensions != nil {
		opts.MimeExtensions = make(map[string]string, len(c.MimeExtensions))
		for k, v := range c.MimeExtensions {
			opts.MimeExtensions[k] = v
		}
	}
	if c.FixFileExtensions != nil {
		opts.FixFileExtensions = *c.FixFileExtensions
	}
	if c.ValidateIntegrity != nil {
		opts.ValidateIntegrity = *c.ValidateIntegrity
	}
	if c.DetectContentType != nil {
		opts.DetectContentType = *c.DetectContentType
	}
	if c.WebRoot != nil {
		opts.WebRoot = upload.NormalizeWebRoot(*c.WebRoot)
	}
	return opts, nil
}
