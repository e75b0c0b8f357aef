package archive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/logger"
)

// Archive stores raw pages under a prefix of one bucket.
type Archive struct {
	objects ObjectStore
	bucket  string
	prefix  string
	closer  io.Closer
}

// New creates an Archive with its own storage client.
// It assumes Application Default Credentials are configured.
func New(ctx context.Context, bucket, prefix string) (*Archive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	a := NewWithClient(client, bucket, prefix)
	a.closer = client
	return a, nil
}

// NewWithClient creates an Archive over a shared storage client.
func NewWithClient(client *storage.Client, bucket, prefix string) *Archive {
	return NewWithStore(&gcsBucket{handle: client.Bucket(bucket)}, bucket, prefix)
}

// NewWithStore creates an Archive over any ObjectStore.
func NewWithStore(objects ObjectStore, bucket, prefix string) *Archive {
	return &Archive{objects: objects, bucket: bucket, prefix: prefix}
}

// Close releases the storage client if the Archive created it.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// UploadPage writes one raw page.
func (a *Archive) UploadPage(ctx context.Context, ref PageRef, raw []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	name := ref.ObjectName(a.prefix)
	if err := a.objects.Put(ctx, name, "application/json", raw); err != nil {
		return fmt.Errorf("UploadPage: %s/%s: %w", a.bucket, name, err)
	}
	return nil
}

// Hook returns a page callback for the registry client. Upload failures are
// logged and never interrupt fetching.
func (a *Archive) Hook() func(ctx context.Context, t domain.DecisionType, w domain.Window, page int, raw []byte) {
	return func(ctx context.Context, t domain.DecisionType, w domain.Window, page int, raw []byte) {
		ref := PageRef{Type: t, Window: w, Page: page}
		if err := a.UploadPage(ctx, ref, raw); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Str("object", ref.ObjectName(a.prefix)).Msg("archiving raw page failed")
		}
	}
}

// ListPages returns every archived page ref under the prefix.
// Objects that do not follow the layout are skipped.
func (a *Archive) ListPages(ctx context.Context) ([]PageRef, error) {
	log := logger.FromContext(ctx)

	// A trailing slash keeps prefix "6135" from matching "61350/...".
	prefix := a.prefix
	if prefix != "" {
		prefix = strings.TrimSuffix(prefix, "/") + "/"
	}
	names, err := a.objects.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("ListPages: %s/%s: %w", a.bucket, prefix, err)
	}

	var refs []PageRef
	for _, name := range names {
		ref, err := ParseObjectName(a.prefix, name)
		if err != nil {
			log.Debug().Err(err).Str("object", name).Msg("skipping object")
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
