package rom

import (
	"context"
	"time"

	"github.com/cruciblehq/zkb/internal/request"
)

// LineageOS nightly update API.
const lineageOSEndpoint = "https://download.lineageos.org/api/v1/{codename}/nightly/*"

type lineageOSResponse struct {
	Response []struct {
		Datetime int64  `json:"datetime"`
		Filename string `json:"filename"`
		ID       string `json:"id"`
		RomType  string `json:"romtype"`
		Size     int64  `json:"size"`
		URL      string `json:"url"`
		Version  string `json:"version"`
	} `json:"response"`
}

// Queries the LineageOS update API.
type LineageOS struct {
	endpoint
}

// Creates a LineageOS client.
func NewLineageOS(opts Options) Client {
	return &LineageOS{newEndpoint(request.BaseLOS, lineageOSEndpoint, nil, opts)}
}

// Implements [Client].
func (c *LineageOS) LatestRelease(ctx context.Context, vendorCodename string) (*Release, error) {
	var body lineageOSResponse
	if err := c.get(ctx, vendorCodename, &body); err != nil {
		return nil, err
	}

	releases := make([]Release, 0, len(body.Response))
	for _, e := range body.Response {
		var ts time.Time
		if e.Datetime > 0 {
			ts = time.Unix(e.Datetime, 0).UTC()
		}
		releases = append(releases, Release{
			Version:  e.Version,
			URL:      e.URL,
			Filename: e.Filename,
			Datetime: ts,
		})
	}

	return latest(c.vendor, vendorCodename, releases)
}
