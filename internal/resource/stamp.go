package resource

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Media types recorded in stamp descriptors.
const (
	mediaTypeGit     = "application/vnd.cruciblehq.zkb.git"
	mediaTypeArchive = "application/vnd.cruciblehq.zkb.archive"
)

// Annotation keys recorded in stamp descriptors.
const (
	annotationName     = "org.cruciblehq.zkb.resource.name"
	annotationRef      = "org.cruciblehq.zkb.resource.ref"
	annotationRevision = "org.cruciblehq.zkb.resource.revision"
)

// Describes the fetched resource an entry resolved to.
//
// For archives the digest is that of the downloaded file. For git resources
// it is derived from the URL, ref and checked out revision.
func newStamp(e Entry, d digest.Digest, size int64, revision string) ocispec.Descriptor {
	desc := ocispec.Descriptor{
		Digest: d,
		Size:   size,
		URLs:   []string{e.URL},
		Annotations: map[string]string{
			annotationName: e.Name,
		},
	}

	switch e.Kind {
	case KindGit:
		desc.MediaType = mediaTypeGit
		desc.Annotations[annotationRef] = e.Ref
		desc.Annotations[annotationRevision] = revision
	default:
		desc.MediaType = mediaTypeArchive
	}
	return desc
}

// Writes a stamp atomically.
func writeStamp(path string, desc ocispec.Descriptor) error {
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Reads a stamp. A missing stamp yields (nil, nil).
func readStamp(path string) (*ocispec.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var desc ocispec.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

// Reports whether desc describes what e would fetch today.
func (e Entry) matches(desc *ocispec.Descriptor) bool {
	if desc == nil || desc.Digest.Validate() != nil {
		return false
	}
	if len(desc.URLs) == 0 || desc.URLs[0] != e.URL {
		return false
	}

	switch e.Kind {
	case KindGit:
		return desc.MediaType == mediaTypeGit && desc.Annotations[annotationRef] == e.Ref
	case KindArchive:
		if desc.MediaType != mediaTypeArchive {
			return false
		}
		return e.Digest == "" || desc.Digest == e.Digest
	default:
		return false
	}
}
