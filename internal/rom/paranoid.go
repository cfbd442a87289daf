package rom

import (
	"context"
	"path"
	"strconv"
	"time"

	"github.com/cruciblehq/zkb/internal/request"
)

// ParanoidAndroid update API.
const paranoidAndroidEndpoint = "https://api.paranoidandroid.co/updates/{codename}"

// Devices whose ParanoidAndroid identifier differs from the canonical codename.
var paranoidAndroidSpecials = map[string]string{
	"dumpling":     "oneplus5t",
	"cheeseburger": "oneplus5",
}

type paranoidAndroidResponse struct {
	Updates []struct {
		Build    string `json:"build"`
		Datetime string `json:"datetime"`
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
		URL      string `json:"url"`
		Version  string `json:"version"`
	} `json:"updates"`
}

// Queries the ParanoidAndroid update API.
type ParanoidAndroid struct {
	endpoint
}

// Creates a ParanoidAndroid client.
func NewParanoidAndroid(opts Options) Client {
	return &ParanoidAndroid{newEndpoint(request.BasePA, paranoidAndroidEndpoint, paranoidAndroidSpecials, opts)}
}

// Implements [Client].
func (c *ParanoidAndroid) LatestRelease(ctx context.Context, vendorCodename string) (*Release, error) {
	var body paranoidAndroidResponse
	if err := c.get(ctx, vendorCodename, &body); err != nil {
		return nil, err
	}

	releases := make([]Release, 0, len(body.Updates))
	for _, e := range body.Updates {
		filename := e.Filename
		if filename == "" && e.URL != "" {
			filename = path.Base(e.URL)
		}
		releases = append(releases, Release{
			Version:  e.Version,
			URL:      e.URL,
			Filename: filename,
			Datetime: parseDatetime(e.Datetime),
		})
	}

	return latest(c.vendor, vendorCodename, releases)
}

// Parses a unix timestamp that the API serves as a string.
func parseDatetime(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}
