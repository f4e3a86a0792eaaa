// Package netfetch downloads a remote file so it can be attached like a
// regular upload.
package netfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
)

var (
	ErrTooLarge         = errors.New("content exceeds maximum size")
	ErrDownloadFailed   = errors.New("download failed")
	ErrInvalidURL       = errors.New("url must use http or https")
	ErrTooManyRedirects = errors.New("too many redirects")
)

type Options struct {
	MaxBytes     int64
	MaxRedirects int
	UserAgent    string
}

// Result is a downloaded body along with what the server said about it.
type Result struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Fetch downloads rawURL with scheme checks, a redirect limit and a size cap
// enforced both on Content-Length and while reading.
func Fetch(ctx context.Context, client *http.Client, rawURL string, opts Options) (*Result, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if !isAllowedScheme(rawURL) {
		return nil, ErrInvalidURL
	}

	clientCopy := *client
	redirectLimit := opts.MaxRedirects
	if redirectLimit <= 0 {
		redirectLimit = 3
	}
	clientCopy.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= redirectLimit {
			return ErrTooManyRedirects
		}
		if !isAllowedScheme(req.URL.String()) {
			return ErrInvalidURL
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "upload-column/1.0"
	}
	req.Header.Set("User-Agent", ua)

	resp, err := clientCopy.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) && (errors.Is(uerr.Err, ErrTooManyRedirects) || errors.Is(uerr.Err, ErrInvalidURL)) {
			return nil, uerr.Err
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}

	if opts.MaxBytes > 0 && resp.ContentLength > opts.MaxBytes {
		return nil, ErrTooLarge
	}

	var limit io.Reader = resp.Body
	if opts.MaxBytes > 0 {
		limit = io.LimitReader(resp.Body, opts.MaxBytes+1)
	}

	data, err := io.ReadAll(limit)
	if err != nil {
		return nil, err
	}
	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		return nil, ErrTooLarge
	}

	return &Result{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    filenameFor(resp),
	}, nil
}

// filenameFor prefers Content-Disposition and falls back to the last segment
// of the final request path.
func filenameFor(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	if resp.Request == nil || resp.Request.URL == nil {
		return ""
	}
	name := path.Base(resp.Request.URL.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}

func isAllowedScheme(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch parsed.Scheme {
	case "http", "https":
		return true
	default:
		return false
	}
}
