package rom

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cruciblehq/zkb/internal/fetch"
	"github.com/cruciblehq/zkb/internal/request"
	"github.com/hashicorp/go-version"
)

// A ROM build published by a vendor.
type Release struct {
	Vendor   request.Base // Vendor that published the release.
	Codename string       // Vendor device identifier the release was queried for.
	Version  string       // Version identifier as published.
	URL      string       // Download location of the ROM zip.
	Filename string       // File name of the ROM zip.
	Datetime time.Time    // Publication time, zero if unknown.
}

// Capability set shared by every ROM vendor.
type Client interface {

	// Vendor the client talks to.
	Vendor() request.Base

	// Maps a canonical codename to the vendor's device identifier.
	//
	// Identity is pure: the same codename always yields the same identifier.
	Identity(codename string) string

	// Returns the most recent release for a vendor device identifier.
	//
	// Fails with [ErrReleaseNotFound] if the vendor lists no usable release
	// and with [ErrReleaseUnreachable] if the endpoint cannot be queried.
	LatestRelease(ctx context.Context, vendorCodename string) (*Release, error)
}

// Configures a client.
type Options struct {
	HTTPClient *http.Client // Nil uses http.DefaultClient.
	Endpoint   string       // Overrides the vendor URL template; "{codename}" is substituted.
}

// Creates a client.
type Constructor func(opts Options) Client

// Maps kernel bases to the constructor of their vendor client.
type Registry map[request.Base]Constructor

// Returns the registry of all built-in vendors.
//
// The "x" and "aosp" bases have no vendor ROM distribution.
func DefaultRegistry() Registry {
	return Registry{
		request.BaseLOS: NewLineageOS,
		request.BasePA:  NewParanoidAndroid,
	}
}

// Creates the client for base.
func (r Registry) New(base request.Base, opts Options) (Client, error) {
	ctor, ok := r[base]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVendor, base)
	}
	return ctor(opts), nil
}

// Endpoint and codename quirks shared by JSON vendors.
type endpoint struct {
	vendor   request.Base
	template string            // URL template containing "{codename}".
	specials map[string]string // Canonical codename to vendor identifier.
	client   *http.Client
}

func newEndpoint(vendor request.Base, template string, specials map[string]string, opts Options) endpoint {
	if opts.Endpoint != "" {
		template = opts.Endpoint
	}
	return endpoint{vendor: vendor, template: template, specials: specials, client: opts.HTTPClient}
}

func (e endpoint) Vendor() request.Base {
	return e.vendor
}

func (e endpoint) Identity(codename string) string {
	if mapped, ok := e.specials[codename]; ok {
		return mapped
	}
	return codename
}

func (e endpoint) url(vendorCodename string) string {
	return strings.ReplaceAll(e.template, "{codename}", vendorCodename)
}

// Fetches the endpoint for vendorCodename and decodes the body into v.
func (e endpoint) get(ctx context.Context, vendorCodename string, v any) error {
	if err := fetch.JSON(ctx, e.client, e.url(vendorCodename), v); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrReleaseUnreachable, e.vendor, vendorCodename, err)
	}
	return nil
}

// Selects the release with the highest version identifier.
//
// Versions are compared semantically; releases whose version does not parse
// rank below all parseable ones and are ordered lexically among themselves.
// Ties are broken by publication time. Releases without a URL are ignored.
func latest(vendor request.Base, codename string, releases []Release) (*Release, error) {
	candidates := make([]Release, 0, len(releases))
	for _, r := range releases {
		if r.URL != "" {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrReleaseNotFound, vendor, codename)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})

	best := candidates[len(candidates)-1]
	best.Vendor = vendor
	best.Codename = codename
	return &best, nil
}

// Reports whether a ranks below b.
func less(a, b Release) bool {
	va, errA := version.NewVersion(a.Version)
	vb, errB := version.NewVersion(b.Version)

	switch {
	case errA == nil && errB == nil:
		if !va.Equal(vb) {
			return va.LessThan(vb)
		}
	case errA != nil && errB == nil:
		return true
	case errA == nil && errB != nil:
		return false
	default:
		if a.Version != b.Version {
			return a.Version < b.Version
		}
	}
	return a.Datetime.Before(b.Datetime)
}
