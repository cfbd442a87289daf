package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"
)

const (

	// Default timeout for JSON requests. Downloads are bounded by the context only.
	defaultJSONTimeout = 30 * time.Second

	// User agent sent with every request.
	userAgent = "zkb"
)

var (
	ErrRequest        = errors.New("request failed")
	ErrStatus         = errors.New("unexpected status")
	ErrDigestMismatch = errors.New("digest mismatch")
)

// Outcome of a completed download.
type Download struct {
	Path   string        // Final location of the file.
	Digest digest.Digest // Canonical (sha256) digest of the content.
	Size   int64         // Number of bytes written.
}

// Downloads url to dest.
//
// If expected is non-empty the content is verified against it using the
// digest's own algorithm; a mismatch fails with [ErrDigestMismatch] and the
// temporary file is discarded. Parent directories of dest are created.
func File(ctx context.Context, client *http.Client, url, dest string, expected digest.Digest) (*Download, error) {
	if expected != "" {
		if err := expected.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDigestMismatch, err)
		}
	}

	body, err := open(ctx, client, url, "")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	canonical := digest.Canonical.Digester()
	writers := []io.Writer{tmp, canonical.Hash()}

	var verifier digest.Verifier
	if expected != "" {
		verifier = expected.Verifier()
		writers = append(writers, verifier)
	}

	n, err := io.Copy(io.MultiWriter(writers...), body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequest, url, err)
	}

	if verifier != nil && !verifier.Verified() {
		return nil, fmt.Errorf("%w: %s: want %s", ErrDigestMismatch, url, expected)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return nil, err
	}

	return &Download{Path: dest, Digest: canonical.Digest(), Size: n}, nil
}

// Fetches url and decodes the JSON body into v.
func JSON(ctx context.Context, client *http.Client, url string, v any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultJSONTimeout)
		defer cancel()
	}

	body, err := open(ctx, client, url, "application/json")
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: decode: %w", ErrRequest, url, err)
	}
	return nil
}

// Issues a GET request and returns the body of a 2xx response.
func open(ctx context.Context, client *http.Client, url, accept string) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: %s", ErrStatus, url, resp.Status)
	}

	return resp.Body, nil
}
