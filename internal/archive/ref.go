// Package archive keeps the raw registry pages in Cloud Storage so a store
// can be rebuilt without calling the registry again.
package archive

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/spending-tracker/internal/domain"
)

const dateLayout = "2006-01-02"

// PageRef identifies one archived search page.
type PageRef struct {
	Type   domain.DecisionType
	Window domain.Window
	Page   int
}

// ObjectName lays refs out as <prefix>/<type>/<from>_<to>/page-NNNN.json.
// A later fetch of the same page overwrites the earlier copy.
func (r PageRef) ObjectName(prefix string) string {
	dir := fmt.Sprintf("%s_%s",
		r.Window.From.In(time.UTC).Format(dateLayout),
		r.Window.To.In(time.UTC).Format(dateLayout))
	return path.Join(prefix, r.Type.Slug(), dir, fmt.Sprintf("page-%04d.json", r.Page))
}

// ParseObjectName is the inverse of ObjectName.
func ParseObjectName(prefix, name string) (PageRef, error) {
	rel := strings.TrimPrefix(name, strings.TrimSuffix(prefix, "/")+"/")
	if prefix == "" {
		rel = name
	}
	parts := strings.Split(rel, "/")
	if len(parts) != 3 {
		return PageRef{}, fmt.Errorf("ParseObjectName: unexpected layout %q", name)
	}

	t, ok := domain.ParseDecisionType(parts[0])
	if !ok {
		return PageRef{}, fmt.Errorf("ParseObjectName: unknown type %q in %q", parts[0], name)
	}

	from, to, ok := strings.Cut(parts[1], "_")
	if !ok {
		return PageRef{}, fmt.Errorf("ParseObjectName: bad window %q in %q", parts[1], name)
	}
	fromDate, err := civil.ParseDate(from)
	if err != nil {
		return PageRef{}, fmt.Errorf("ParseObjectName: parsing from date: %w", err)
	}
	toDate, err := civil.ParseDate(to)
	if err != nil {
		return PageRef{}, fmt.Errorf("ParseObjectName: parsing to date: %w", err)
	}

	num := strings.TrimSuffix(strings.TrimPrefix(parts[2], "page-"), ".json")
	page, err := strconv.Atoi(num)
	if err != nil {
		return PageRef{}, fmt.Errorf("ParseObjectName: parsing page in %q: %w", name, err)
	}

	return PageRef{Type: t, Window: domain.Window{From: fromDate, To: toDate}, Page: page}, nil
}
