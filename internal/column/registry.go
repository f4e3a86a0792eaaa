package column

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/spf13/afero"

	"upload-column/internal/events"
	"upload-column/internal/imageproc"
	"upload-column/internal/netfetch"
	"upload-column/internal/upload"
	"upload-column/internal/uploader"
)

// Registry holds the upload attributes of one host type. Registration happens
// at setup; lookups are safe from many goroutines afterwards.
type Registry struct {
	mu       sync.RWMutex
	defaults Config
	order    []string
	columns  map[string]upload.Options

	fs        afero.Fs
	logger    *slog.Logger
	mirror    uploader.Uploader
	publisher events.Publisher
	imageM    upload.Manipulator
	client    *http.Client
	fetchOpts netfetch.Options
}

type Option func(*Registry)

func WithDefaults(cfg Config) Option {
	return func(r *Registry) { r.defaults = Merge(r.defaults, cfg) }
}

func WithFs(fs afero.Fs) Option {
	return func(r *Registry) { r.fs = fs }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithMirror(m uploader.Uploader) Option {
	return func(r *Registry) { r.mirror = m }
}

func WithPublisher(p events.Publisher) Option {
	return func(r *Registry) { r.publisher = p }
}

// WithImageManipulator replaces the imaging backed manipulator used by image
// columns that do not configure their own.
func WithImageManipulator(m upload.Manipulator) Option {
	return func(r *Registry) { r.imageM = m }
}

func WithHTTPClient(client *http.Client, opts netfetch.Options) Option {
	return func(r *Registry) {
		r.client = client
		r.fetchOpts = opts
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		defaults:  Defaults(),
		columns:   make(map[string]upload.Options),
		fs:        afero.NewOsFs(),
		logger:    slog.Default(),
		publisher: events.Discard{},
		client:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.imageM == nil {
		r.imageM = imageproc.NewManipulator(r.fs, imageproc.Limits{}, 0)
	}
	return r
}

// Register adds an upload attribute.
func (r *Registry) Register(attr string, cfg Config) error {
	return r.register(attr, cfg, r.defaults)
}

// RegisterImage adds an attribute with image defaults layered beneath cfg.
func (r *Registry) RegisterImage(attr string, cfg Config) error {
	defaults := ImageDefaults(r.defaults)
	if defaults.Manipulator == nil {
		defaults.Manipulator = r.imageM
	}
	return r.register(attr, cfg, defaults)
}

func (r *Registry) register(attr string, cfg, defaults Config) error {
	if attr == "" {
		return fmt.Errorf("%w: empty attribute name", ErrInvalidConfig)
	}
	opts, err := Resolve(cfg, defaults)
	if err != nil {
		return fmt.Errorf("column %s: %w", attr, err)
	}
	opts.Fs = r.fs
	opts.Logger = r.logger
	opts.Mirror = r.mirror

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.columns[attr]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateColumn, attr)
	}
	r.columns[attr] = opts
	r.order = append(r.order, attr)
	return nil
}

// Options returns the resolved options of attr.
func (r *Registry) Options(attr string) (upload.Options, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	opts, ok := r.columns[attr]
	return opts, ok
}

// Columns lists attributes in registration order.
func (r *Registry) Columns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Fs() afero.Fs { return r.fs }

// HostColumns lists every attribute followed by its magic columns, the field
// set a host record of this registry should carry.
func (r *Registry) HostColumns() []string {
	var out []string
	for _, attr := range r.Columns() {
		out = append(out, attr)
		out = append(out, MagicColumns(attr)...)
	}
	return out
}

// TmpDirs lists the distinct temp directories of all columns whose temp dir
// does not depend on the host. The sweeper walks these.
func (r *Registry) TmpDirs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var dirs []string
	for _, attr := range r.order {
		dir, ok := r.columns[attr].StaticTmpDir()
		if ok && !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// Attach returns the attachment state for one host record. The result is not
// safe for concurrent use; each record owns its own.
func (r *Registry) Attach(host upload.Host) *Attachments {
	return &Attachments{reg: r, host: host, handles: make(map[string]*Handle)}
}
