package archive

import (
	"context"
	"fmt"
)

// DownloadPage reads one archived page.
func (a *Archive) DownloadPage(ctx context.Context, ref PageRef) ([]byte, error) {
	name := ref.ObjectName(a.prefix)
	data, err := a.objects.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("DownloadPage: %s/%s: %w", a.bucket, name, err)
	}
	return data, nil
}
