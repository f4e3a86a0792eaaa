package column

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"upload-column/internal/events"
	"upload-column/internal/extension"
	"upload-column/internal/sanitized"
	"upload-column/internal/upload"
)

type record struct {
	fields map[string]string
}

func newRecord(columns ...string) *record {
	r := &record{fields: map[string]string{}}
	for _, c := range columns {
		r.fields[c] = ""
	}
	return r
}

func (r *record) Get(field string) (string, bool) {
	v, ok := r.fields[field]
	return v, ok
}

func (r *record) Set(field, value string) { r.fields[field] = value }

func (r *record) ColumnNames() []string {
	out := make([]string, 0, len(r.fields))
	for k := range r.fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{B: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func file(name, body string) sanitized.Upload {
	return sanitized.Upload{Reader: strings.NewReader(body), Filename: name}
}

func exists(t *testing.T, fs afero.Fs, p string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, p)
	require.NoError(t, err)
	return ok
}

func TestResolveLayersOverDefaults(t *testing.T) {
	opts, err := Resolve(Config{
		RootDir:  "/srv/public",
		WebRoot:  String("files/"),
		Versions: []upload.Version{{Name: "thumb", Instruction: upload.Resize(10, 10)}},
	}, Defaults())
	require.NoError(t, err)
	require.Equal(t, "/srv/public", opts.RootDir)
	require.Equal(t, "/files", opts.WebRoot)
	require.Equal(t, upload.OldFilesDelete, opts.OldFiles)
	require.True(t, opts.DetectContentType)
	require.False(t, opts.ValidateIntegrity)
	require.True(t, opts.Extensions.Contains("tar.gz"))
	require.Len(t, opts.Versions, 1)
	require.Equal(t, upload.StrategyStatic, opts.TmpDir.Kind())
	require.Equal(t, "tmp", opts.TmpDir.Resolve(nil, nil))

	imageDefaults := ImageDefaults(Defaults())
	opts, err = Resolve(Config{ValidateIntegrity: Bool(true)}, imageDefaults)
	require.NoError(t, err)
	require.Equal(t, filepath.Join("public", "images"), opts.RootDir)
	require.Equal(t, "/images", opts.WebRoot)
	require.True(t, opts.ValidateIntegrity)
	require.ElementsMatch(t, []string{"gif", "jpeg", "jpg", "png"}, opts.Extensions.Slice())
	require.Equal(t, extension.ImageMimeExtensions(), opts.MimeExtensions)
}

func TestResolveRejectsBadConfig(t *testing.T) {
	_, err := Resolve(Config{OldFiles: "shred"}, Defaults())
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Resolve(Config{Versions: []upload.Version{{Name: "path"}}}, Defaults())
	require.ErrorIs(t, err, upload.ErrIllegalVersion)

	_, err = Resolve(Config{ValidateIntegrity: Bool(true), Extensions: []string{}}, Defaults())
	require.ErrorIs(t, err, upload.ErrNoExtensions)
}

func TestResolveDoesNotMutateDefaults(t *testing.T) {
	defaults := Defaults()
	opts, err := Resolve(Config{}, defaults)
	require.NoError(t, err)
	opts.MimeExtensions["x/y"] = "xy"
	_, ok := defaults.MimeExtensions["x/y"]
	require.False(t, ok)
}

func newTestRegistry(t *testing.T, fs afero.Fs, opts ...Option) *Registry {
	t.Helper()
	base := []Option{WithFs(fs), WithDefaults(Config{RootDir: "/public"})}
	return NewRegistry(append(base, opts...)...)
}

func TestRegistry(t *testing.T) {
	reg := newTestRegistry(t, afero.NewMemMapFs())
	require.NoError(t, reg.Register("document", Config{}))
	require.NoError(t, reg.RegisterImage("avatar", Config{}))
	require.ErrorIs(t, reg.Register("document", Config{}), ErrDuplicateColumn)
	require.Equal(t, []string{"document", "avatar"}, reg.Columns())

	opts, ok := reg.Options("avatar")
	require.True(t, ok)
	require.Equal(t, "/public/images", opts.RootDir)
	require.NotNil(t, opts.Manipulator)

	_, err := reg.Attach(newRecord()).Column("missing")
	require.ErrorIs(t, err, ErrUnknownColumn)
}

func TestRegistryDerivedColumns(t *testing.T) {
	reg := newTestRegistry(t, afero.NewMemMapFs())
	require.NoError(t, reg.Register("document", Config{}))
	require.NoError(t, reg.Register("contract", Config{}))
	require.NoError(t, reg.RegisterImage("avatar", Config{}))
	require.NoError(t, reg.Register("scan", Config{TmpDir: upload.HostFunc(func(upload.Host) string { return "tmp/scan" })}))

	require.Equal(t, []string{"/public/tmp", "/public/images/tmp"}, reg.TmpDirs())

	cols := reg.HostColumns()
	require.Equal(t, "document", cols[0])
	require.Contains(t, cols, "avatar_width")
	require.Contains(t, cols, "scan_url")
	require.Len(t, cols, 4*(1+len(magicPredicates)))
}

func TestAssignSaveAndRetrieve(t *testing.T) {
	fs := afero.NewMemMapFs()
	pub := &events.Memory{}
	reg := newTestRegistry(t, fs, WithPublisher(pub))
	require.NoError(t, reg.Register("document", Config{}))

	rec := newRecord("document", "document_size", "document_content_type", "document_path", "document_original_filename")
	att := reg.Attach(rec)
	h, err := att.Column("document")
	require.NoError(t, err)

	require.NoError(t, h.Assign(context.Background(), file("Annual Report.pdf", "%PDF-1.4 body")))
	require.Equal(t, "Annual_Report.pdf", rec.fields["document"])
	require.NotEmpty(t, h.Temp())
	require.Contains(t, h.Path(), "/public/tmp/")
	require.Equal(t, "13", rec.fields["document_size"])
	require.Equal(t, "application/pdf", rec.fields["document_content_type"])
	require.Equal(t, "Annual_Report.pdf", rec.fields["document_original_filename"])

	require.NoError(t, att.AfterSave(context.Background()))
	require.Equal(t, "/public/document/Annual_Report.pdf", h.Path())
	require.Equal(t, "/document/Annual_Report.pdf", h.URL())
	require.Equal(t, "/public/document/Annual_Report.pdf", rec.fields["document_path"])
	require.Empty(t, h.Temp())

	reloaded, err := reg.Attach(rec).Column("document")
	require.NoError(t, err)
	f, err := reloaded.File()
	require.NoError(t, err)
	require.True(t, f.Exists())

	kinds := []events.Kind{}
	for _, ev := range pub.Events() {
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []events.Kind{events.KindUpload, events.KindSave}, kinds)
}

func TestEmptyAssignKeepsSavedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	reg := newTestRegistry(t, fs)
	require.NoError(t, reg.Register("document", Config{}))
	rec := newRecord("document")

	att := reg.Attach(rec)
	h, _ := att.Column("document")
	require.NoError(t, h.Assign(context.Background(), file("a.txt", "hello")))
	require.NoError(t, att.AfterSave(context.Background()))
	saved := h.Path()

	att = reg.Attach(rec)
	h, _ = att.Column("document")
	before := testutil.ToFloat64(uploadsTotal.WithLabelValues("document", resultEmpty))
	require.NoError(t, h.Assign(context.Background(), strings.NewReader("")))
	require.Equal(t, before+1, testutil.ToFloat64(uploadsTotal.WithLabelValues("document", resultEmpty)))
	require.NoError(t, att.AfterSave(context.Background()))

	require.Equal(t, "a.txt", rec.fields["document"])
	require.Equal(t, saved, h.Path())
	require.True(t, exists(t, fs, saved))
}

func TestIntegrityFailureIsStashed(t *testing.T) {
	fs := afero.NewMemMapFs()
	reg := newTestRegistry(t, fs)
	require.NoError(t, reg.RegisterImage("avatar", Config{ValidateIntegrity: Bool(true)}))
	rec := newRecord("avatar")
	att := reg.Attach(rec)
	h, _ := att.Column("avatar")

	err := h.Assign(context.Background(), file("payload.php", "<?php"))
	require.ErrorIs(t, err, upload.ErrIntegrity)
	require.ErrorIs(t, h.Err(), upload.ErrIntegrity)
	require.EqualError(t, att.Validate(), "avatar has an extension that is not allowed.")
	require.Contains(t, att.Errors(), "avatar")
	require.Equal(t, "", rec.fields["avatar"])
	f, err := h.File()
	require.NoError(t, err)
	require.Nil(t, f)
	require.False(t, exists(t, fs, "/public/images/tmp"))

	require.NoError(t, h.Assign(context.Background(), sanitized.Upload{Reader: bytes.NewReader(jpegBytes(t, 8, 8)), Filename: "ok.jpg"}))
	require.NoError(t, att.Validate())
}

func TestReplaceDeletesOldDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	reg := newTestRegistry(t, fs)
	require.NoError(t, reg.Register("document", Config{
		StoreDir: upload.HostFunc(func(h upload.Host) string {
			rev, _ := h.Get("revision")
			return filepath.Join("document", rev)
		}),
	}))
	rec := newRecord("document")
	rec.Set("revision", "1")

	att := reg.Attach(rec)
	h, _ := att.Column("document")
	require.NoError(t, h.Assign(context.Background(), file("first.txt", "one")))
	require.NoError(t, att.AfterSave(context.Background()))
	oldDir := filepath.Dir(h.Path())
	require.Equal(t, "/public/document/1", oldDir)

	att = reg.Attach(rec)
	h, _ = att.Column("document")
	require.NoError(t, h.Assign(context.Background(), file("second.txt", "two")))
	rec.Set("revision", "2")
	require.True(t, exists(t, fs, oldDir), "old file must survive until save")
	require.NoError(t, att.AfterSave(context.Background()))

	require.False(t, exists(t, fs, oldDir))
	require.Equal(t, "/public/document/2/second.txt", h.Path())
	require.True(t, exists(t, fs, h.Path()))
}

func TestReplaceSameNameKeepsNewFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	reg := newTestRegistry(t, fs)
	require.NoError(t, reg.Register("document", Config{}))
	rec := newRecord("document")

	att := reg.Attach(rec)
	h, _ := att.Column("document")
	require.NoError(t, h.Assign(context.Background(), file("notes.txt", "v1")))
	require.NoError(t, att.AfterSave(context.Background()))

	att = reg.Attach(rec)
	h, _ = att.Column("document")
	require.NoError(t, h.Assign(context.Background(), file("notes.txt", "v2")))
	require.NoError(t, att.AfterSave(context.Background()))

	data, err := afero.ReadFile(fs, "/public/document/notes.txt")
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))
}

func TestKeepPolicy(t *testing.T) {
	fs := afero.NewMemMapFs()
	reg := newTestRegistry(t, fs)
	require.NoError(t, reg.Register("document", Config{OldFiles: upload.OldFilesKeep}))
	rec := newRecord("document")

	att := reg.Attach(rec)
	h, _ := att.Column("document")
	require.NoError(t, h.Assign(context.Background(), file("first.txt", "one")))
	require.NoError(t, att.AfterSave(context.Background()))
	first := h.Path()

	require.NoError(t, h.Assign(context.Background(), file("second.txt", "two")))
	require.NoError(t, att.AfterSave(context.Background()))
	require.True(t, exists(t, fs, first))

	require.NoError(t, att.AfterDestroy(context.Background()))
	require.True(t, exists(t, fs, h.Path()))
}

func TestDestroyDeletesFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	pub := &events.Memory{}
	reg := newTestRegistry(t, fs, WithPublisher(pub))
	require.NoError(t, reg.Register("document", Config{}))
	require.NoError(t, reg.Register("attachment", Config{OldFiles: upload.OldFilesReplace}))
	rec := newRecord("document", "attachment")

	att := reg.Attach(rec)
	doc, _ := att.Column("document")
	extra, _ := att.Column("attachment")
	require.NoError(t, doc.Assign(context.Background(), file("a.txt", "a")))
	require.NoError(t, extra.Assign(context.Background(), file("b.txt", "b")))
	require.NoError(t, att.AfterSave(context.Background()))

	att = reg.Attach(rec)
	require.NoError(t, att.AfterDestroy(context.Background()))
	require.False(t, exists(t, fs, "/public/document/a.txt"))
	require.False(t, exists(t, fs, "/public/document"))
	require.True(t, exists(t, fs, "/public/attachment/b.txt"))
	require.Equal(t, events.KindDestroy, pub.Events()[len(pub.Events())-1].Kind)
}

func TestSetTemp(t *testing.T) {
	fs := afero.NewMemMapFs()
	reg := newTestRegistry(t, fs)
	require.NoError(t, reg.Register("document", Config{Versions: []upload.Version{{Name: "copy"}}}))

	first := reg.Attach(newRecord("document"))
	h, _ := first.Column("document")
	require.NoError(t, h.Assign(context.Background(), file("draft.txt", "draft")))
	token := h.Temp()

	// A later request re-attaches the staged file by token.
	rec := newRecord("document")
	att := reg.Attach(rec)
	h2, _ := att.Column("document")
	require.NoError(t, h2.SetTemp(context.Background(), ""))
	require.NoError(t, h2.SetTemp(context.Background(), token))
	require.Equal(t, "draft.txt", rec.fields["document"])
	require.NoError(t, att.AfterSave(context.Background()))
	require.True(t, exists(t, fs, "/public/document/draft.txt"))
	copyVersion, ok := h2.Version("copy")
	require.True(t, ok)
	require.True(t, copyVersion.Exists())

	var malformed *upload.TemporaryPathMalformedError
	require.ErrorAs(t, h2.SetTemp(context.Background(), "not-a-token"), &malformed)
	require.ErrorIs(t, h2.SetTemp(context.Background(), token), ErrTempExpired)
}

func TestSetTempIgnoredAfterFreshUpload(t *testing.T) {
	fs := afero.NewMemMapFs()
	reg := newTestRegistry(t, fs)
	require.NoError(t, reg.Register("document", Config{}))

	staged := reg.Attach(newRecord("document"))
	sh, _ := staged.Column("document")
	require.NoError(t, sh.Assign(context.Background(), file("old.txt", "old")))

	rec := newRecord("document")
	att := reg.Attach(rec)
	h, _ := att.Column("document")
	require.NoError(t, h.Assign(context.Background(), file("new.txt", "new")))
	require.NoError(t, h.SetTemp(context.Background(), sh.Temp()))
	require.Equal(t, "new.txt", rec.fields["document"])
}

func TestAssignURL(t *testing.T) {
	data := jpegBytes(t, 640, 480)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(data)
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	reg := newTestRegistry(t, fs)
	require.NoError(t, reg.RegisterImage("photo", Config{
		Versions: []upload.Version{
			{Name: "thumb", Instruction: upload.Resize(100, 100)},
			{Name: "square", Instruction: upload.CropResize(50, 50)},
		},
	}))
	rec := newRecord("photo", "photo_width", "photo_height")
	att := reg.Attach(rec)
	h, _ := att.Column("photo")

	require.NoError(t, h.AssignURL(context.Background(), server.URL+"/pics/kerb.jpg"))
	require.Equal(t, "kerb.jpg", rec.fields["photo"])
	require.Equal(t, "640", rec.fields["photo_width"])
	require.Equal(t, "480", rec.fields["photo_height"])
	require.NoError(t, att.AfterSave(context.Background()))

	thumb, ok := h.Version("thumb")
	require.True(t, ok)
	w, hgt, ok := thumb.Dimensions()
	require.True(t, ok)
	require.Equal(t, []int{100, 75}, []int{w, hgt})
	square, _ := h.Version("square")
	w, hgt, _ = square.Dimensions()
	require.Equal(t, []int{50, 50}, []int{w, hgt})
	require.Equal(t, "/images/photo/kerb-thumb.jpg", thumb.URL())
}

func TestClear(t *testing.T) {
	fs := afero.NewMemMapFs()
	reg := newTestRegistry(t, fs)
	require.NoError(t, reg.Register("document", Config{}))
	rec := newRecord("document", "document_filename")
	att := reg.Attach(rec)
	h, _ := att.Column("document")
	require.NoError(t, h.Assign(context.Background(), file("a.txt", "a")))
	require.NoError(t, att.AfterSave(context.Background()))
	require.Equal(t, "a.txt", rec.fields["document_filename"])
	path := h.Path()

	require.NoError(t, h.Clear())
	require.True(t, exists(t, fs, path))
	require.NoError(t, att.AfterSave(context.Background()))
	require.False(t, exists(t, fs, path))
	require.Equal(t, "", rec.fields["document"])
	require.Equal(t, "", rec.fields["document_filename"])
	require.Equal(t, "", h.URL())
}

func TestMagicColumnsOverwrittenOnReplace(t *testing.T) {
	fs := afero.NewMemMapFs()
	reg := newTestRegistry(t, fs)
	require.NoError(t, reg.Register("document", Config{}))
	rec := newRecord("document", "document_filename", "document_size")
	rec.fields["document_filename"] = "stale.txt"
	att := reg.Attach(rec)
	h, _ := att.Column("document")

	require.NoError(t, h.Assign(context.Background(), file("a.txt", "a")))
	require.Equal(t, "a.txt", rec.fields["document_filename"])
	require.NoError(t, att.AfterSave(context.Background()))

	require.NoError(t, h.Assign(context.Background(), file("b.txt", "bbb")))
	require.NoError(t, att.AfterSave(context.Background()))
	require.Equal(t, "b.txt", rec.fields["document_filename"])
	require.Equal(t, "3", rec.fields["document_size"])
}
