package archive

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/logger"
)

// MockObjectStore is an in-memory implementation of ObjectStore.
type MockObjectStore struct {
	PutFunc  func(ctx context.Context, name, contentType string, data []byte) error
	objects  map[string][]byte
	prefixes []string
}

func newMockObjectStore() *MockObjectStore {
	return &MockObjectStore{objects: map[string][]byte{}}
}

func (m *MockObjectStore) Put(ctx context.Context, name, contentType string, data []byte) error {
	if m.PutFunc != nil {
		if err := m.PutFunc(ctx, name, contentType, data); err != nil {
			return err
		}
	}
	m.objects[name] = slices.Clone(data)
	return nil
}

func (m *MockObjectStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, ok := m.objects[name]
	if !ok {
		return nil, errors.New("object doesn't exist")
	}
	return data, nil
}

func (m *MockObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.prefixes = append(m.prefixes, prefix)
	var names []string
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

var testWindow = domain.Window{
	From: civil.Date{Year: 2024, Month: 1, Day: 1},
	To:   civil.Date{Year: 2024, Month: 7, Day: 1},
}

func TestArchive_HookUploadsPages(t *testing.T) {
	objects := newMockObjectStore()
	a := NewWithStore(objects, "bucket", "6135")

	hook := a.Hook()
	hook(context.Background(), domain.TypeAward, testWindow, 0, []byte(`{"page":0}`))
	hook(context.Background(), domain.TypeAward, testWindow, 1, []byte(`{"page":1}`))

	got, ok := objects.objects["6135/award/2024-01-01_2024-07-01/page-0001.json"]
	if !ok || string(got) != `{"page":1}` {
		t.Errorf("Expected page 1 archived, got %v", objects.objects)
	}
	if len(objects.objects) != 2 {
		t.Errorf("Expected 2 objects, got %d", len(objects.objects))
	}
}

func TestArchive_HookLogsUploadFailure(t *testing.T) {
	objects := newMockObjectStore()
	objects.PutFunc = func(ctx context.Context, name, contentType string, data []byte) error {
		return errors.New("permission denied")
	}
	a := NewWithStore(objects, "bucket", "6135")

	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))

	// Must return normally so the fetch continues.
	a.Hook()(ctx, domain.TypePayment, testWindow, 2, []byte(`{}`))

	out := buf.String()
	if !strings.Contains(out, "archiving raw page failed") || !strings.Contains(out, "permission denied") {
		t.Errorf("Expected a warning for the failed upload, got: %s", out)
	}
	if !strings.Contains(out, "6135/payment/2024-01-01_2024-07-01/page-0002.json") {
		t.Errorf("Expected the object name in the warning, got: %s", out)
	}
}

func TestArchive_ListAndDownload(t *testing.T) {
	objects := newMockObjectStore()
	objects.objects["6135/award/2024-01-01_2024-07-01/page-0000.json"] = []byte(`{"a":0}`)
	objects.objects["6135/payment/2024-01-01_2024-07-01/page-0003.json"] = []byte(`{"p":3}`)
	objects.objects["6135/README.txt"] = []byte("notes")
	objects.objects["6135/award/2024-01-01/page-0000.json"] = []byte(`{}`)
	objects.objects["61350/award/2024-01-01_2024-07-01/page-0000.json"] = []byte(`{"other":true}`)
	objects.objects["other/award/2024-01-01_2024-07-01/page-0000.json"] = []byte(`{"other":true}`)

	a := NewWithStore(objects, "bucket", "6135")

	refs, err := a.ListPages(context.Background())
	if err != nil {
		t.Fatalf("ListPages failed: %v", err)
	}
	want := []PageRef{
		{Type: domain.TypeAward, Window: testWindow, Page: 0},
		{Type: domain.TypePayment, Window: testWindow, Page: 3},
	}
	if !slices.Equal(refs, want) {
		t.Errorf("Expected %+v, got %+v", want, refs)
	}
	if len(objects.prefixes) != 1 || objects.prefixes[0] != "6135/" {
		t.Errorf("Expected listing under 6135/, got %v", objects.prefixes)
	}

	raw, err := a.DownloadPage(context.Background(), refs[1])
	if err != nil {
		t.Fatalf("DownloadPage failed: %v", err)
	}
	if string(raw) != `{"p":3}` {
		t.Errorf("Unexpected page body %s", raw)
	}

	if _, err := a.DownloadPage(context.Background(), PageRef{Type: domain.TypeObligation, Window: testWindow}); err == nil {
		t.Error("Expected error for a missing page")
	}
}
