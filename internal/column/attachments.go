package column

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"upload-column/internal/events"
	"upload-column/internal/netfetch"
	"upload-column/internal/sanitized"
	"upload-column/internal/upload"
)

// Attachments tracks the upload attributes of a single host record between
// assignment and the host's save or destroy.
type Attachments struct {
	reg     *Registry
	host    upload.Host
	handles map[string]*Handle
}

// Column returns the handle for attr, creating it on first use.
func (a *Attachments) Column(attr string) (*Handle, error) {
	if h, ok := a.handles[attr]; ok {
		return h, nil
	}
	opts, ok := a.reg.Options(attr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, attr)
	}
	h := &Handle{a: a, attr: attr, opts: opts}
	a.handles[attr] = h
	return h, nil
}

// AfterSave moves staged uploads into place and then removes files they
// replaced. Call it once the host record has been persisted.
func (a *Attachments) AfterSave(ctx context.Context) error {
	var errs []error
	for _, attr := range a.reg.Columns() {
		h, ok := a.handles[attr]
		if !ok {
			continue
		}
		if err := h.afterSave(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", attr, err))
		}
	}
	return errors.Join(errs...)
}

// AfterDestroy removes the files of every attribute whose old-files policy is
// delete. Call it once the host record is gone.
func (a *Attachments) AfterDestroy(ctx context.Context) error {
	var errs []error
	for _, attr := range a.reg.Columns() {
		h, err := a.Column(attr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := h.afterDestroy(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", attr, err))
		}
	}
	return errors.Join(errs...)
}

// Errors returns the stashed assignment errors keyed by attribute.
func (a *Attachments) Errors() map[string]error {
	out := make(map[string]error)
	for attr, h := range a.handles {
		if h.err != nil {
			out[attr] = h.err
		}
	}
	return out
}

// Validate reports stashed integrity failures in the "<attr> <message>" form
// a host shows next to the field.
func (a *Attachments) Validate() error {
	var errs []error
	for _, attr := range a.reg.Columns() {
		if h, ok := a.handles[attr]; ok && h.err != nil {
			errs = append(errs, fmt.Errorf("%s %w", attr, h.err))
		}
	}
	return errors.Join(errs...)
}

func (a *Attachments) publish(ctx context.Context, kind events.Kind, attr string, f *upload.File) {
	ev := events.Event{Kind: kind, Attribute: attr, OccurredAt: time.Now().UTC()}
	if id, ok := a.host.Get("id"); ok {
		ev.Record = id
	}
	if f != nil {
		ev.Path = f.Path()
		ev.URL = f.URL()
		ev.TempValue = f.TempValue()
		ev.ContentType = f.ContentType()
		ev.Size = f.Size()
		for _, v := range f.Versions() {
			ev.Versions = append(ev.Versions, v.Suffix())
		}
	}
	if err := a.reg.publisher.Publish(ctx, ev); err != nil {
		a.reg.logger.Warn("publish event failed", "component", "column", "kind", kind, "attr", attr, "err", err)
	}
}

// Handle is one upload attribute of one host record.
type Handle struct {
	a    *Attachments
	attr string
	opts upload.Options

	file    *upload.File
	loaded  bool
	pending []*upload.File
	err     error
}

func (h *Handle) Attribute() string { return h.attr }

// File returns the attached file, loading it from the host field on first
// access. It is nil when nothing is attached.
func (h *Handle) File() (*upload.File, error) {
	if h.loaded {
		return h.file, nil
	}
	stored, _ := h.a.host.Get(h.attr)
	f, err := upload.Retrieve(stored, h.a.host, h.attr, h.opts)
	if err != nil {
		return nil, err
	}
	h.file, h.loaded = f, true
	return f, nil
}

// Assign uploads src. An empty source and a failed integrity check keep the
// current file; the integrity error is also stashed for Validate.
func (h *Handle) Assign(ctx context.Context, src any) error {
	prev, err := h.File()
	if err != nil {
		return err
	}
	f, err := upload.Upload(src, h.a.host, h.attr, h.opts)
	if err != nil {
		if errors.Is(err, upload.ErrIntegrity) {
			h.err = err
			uploadsTotal.WithLabelValues(h.attr, resultIntegrity).Inc()
		} else {
			uploadsTotal.WithLabelValues(h.attr, resultError).Inc()
		}
		return err
	}
	if f == nil {
		uploadsTotal.WithLabelValues(h.attr, resultEmpty).Inc()
		return nil
	}

	h.err = nil
	h.replace(prev, f)
	uploadsTotal.WithLabelValues(h.attr, resultStaged).Inc()
	uploadBytes.WithLabelValues(h.attr).Observe(float64(f.Size()))
	h.a.publish(ctx, events.KindUpload, h.attr, f)
	return nil
}

// AssignURL downloads rawURL and assigns the result.
func (h *Handle) AssignURL(ctx context.Context, rawURL string) error {
	res, err := netfetch.Fetch(ctx, h.a.reg.client, rawURL, h.a.reg.fetchOpts)
	if err != nil {
		uploadsTotal.WithLabelValues(h.attr, resultError).Inc()
		return err
	}
	return h.Assign(ctx, sanitized.Upload{
		Reader:      bytes.NewReader(res.Data),
		Filename:    res.Filename,
		ContentType: res.ContentType,
	})
}

// SetTemp re-attaches a staged upload from its temp token. It is ignored when
// a fresh upload is already attached or the token is empty.
func (h *Handle) SetTemp(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	prev, err := h.File()
	if err != nil {
		return err
	}
	if prev != nil && prev.IsNew() {
		return nil
	}
	f, err := upload.RetrieveTemp(token, h.a.host, h.attr, h.opts)
	if err != nil {
		return err
	}
	if !f.Exists() {
		return fmt.Errorf("%w: %s", ErrTempExpired, token)
	}
	h.replace(prev, f)
	return nil
}

// Temp is the token of a staged upload, "" otherwise.
func (h *Handle) Temp() string {
	if h.file == nil {
		return ""
	}
	return h.file.TempValue()
}

// Clear detaches the current file. It is removed on the next AfterSave unless
// the policy keeps old files.
func (h *Handle) Clear() error {
	prev, err := h.File()
	if err != nil {
		return err
	}
	h.replace(prev, nil)
	return nil
}

func (h *Handle) replace(prev, next *upload.File) {
	if prev != nil && prev != next && h.opts.OldFiles != upload.OldFilesKeep {
		h.pending = append(h.pending, prev)
	}
	h.file, h.loaded = next, true
	if next == nil {
		h.a.host.Set(h.attr, "")
	} else {
		h.a.host.Set(h.attr, next.ActualFilename())
	}
	h.refreshMagic()
}

func (h *Handle) Err() error { return h.err }

// URL of the attached file, "" when nothing is attached.
func (h *Handle) URL() string {
	f, _ := h.File()
	if f == nil {
		return ""
	}
	return f.URL()
}

func (h *Handle) Path() string {
	f, _ := h.File()
	if f == nil {
		return ""
	}
	return f.Path()
}

func (h *Handle) Version(name string) (*upload.File, bool) {
	f, _ := h.File()
	if f == nil {
		return nil, false
	}
	return f.Version(name)
}

func (h *Handle) afterSave(ctx context.Context) error {
	f := h.file
	if f != nil && f.IsTemp() {
		if err := f.Save(ctx); err != nil {
			return err
		}
		savesTotal.WithLabelValues(h.attr).Inc()
		h.a.publish(ctx, events.KindSave, h.attr, f)
	}

	var keep []string
	if f != nil {
		keep = f.Paths()
	}
	for _, old := range h.pending {
		if err := old.DeleteExcept(ctx, keep...); err != nil {
			return err
		}
		deletesTotal.WithLabelValues(h.attr, reasonReplaced).Inc()
	}
	h.pending = nil
	h.refreshMagic()
	return nil
}

func (h *Handle) afterDestroy(ctx context.Context) error {
	f, err := h.File()
	if err != nil {
		return err
	}
	if h.opts.OldFiles != upload.OldFilesDelete {
		h.pending = nil
		return nil
	}
	for _, old := range append(h.pending, f) {
		if old == nil {
			continue
		}
		if err := old.Delete(ctx); err != nil {
			return err
		}
		deletesTotal.WithLabelValues(h.attr, reasonDestroyed).Inc()
	}
	h.pending = nil
	if f != nil {
		h.a.publish(ctx, events.KindDestroy, h.attr, f)
	}
	return nil
}
