package publication

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/umoar/publicaciones/internal/access"
	"github.com/umoar/publicaciones/internal/logging"
	"github.com/umoar/publicaciones/internal/storage"
	"github.com/umoar/publicaciones/internal/store"
)

type fakeRepo struct {
	mu          sync.Mutex
	rows        map[string]store.Publication
	clock       time.Time
	insertErr   error
	deleteErr   error
	setActiveN  int
	lastListReq store.ListQuery
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		rows:  map[string]store.Publication{},
		clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *fakeRepo) Insert(_ context.Context, p *store.Publication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.rows[p.StoredName]; ok {
		return store.ErrDuplicate
	}
	r.clock = r.clock.Add(time.Second)
	p.CreatedAt = r.clock
	p.IsActive = true
	r.rows[p.StoredName] = *p
	return nil
}

func (r *fakeRepo) FindByStoredName(_ context.Context, name string) (*store.Publication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r *fakeRepo) List(_ context.Context, q store.ListQuery) ([]store.Publication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastListReq = q

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]store.Publication, 0)
	for _, p := range r.rows {
		if q.ActiveOnly && !p.IsActive {
			continue
		}
		if q.UploaderID != 0 && p.UploaderID != q.UploaderID {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Title), needle) &&
			!strings.Contains(strings.ToLower(p.Author), needle) &&
			!strings.Contains(strings.ToLower(p.Career), needle) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeRepo) SetActive(_ context.Context, name string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[name]
	if !ok {
		return store.ErrNotFound
	}
	r.setActiveN++
	p.IsActive = active
	r.rows[name] = p
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.rows[name]; !ok {
		return store.ErrNotFound
	}
	delete(r.rows, name)
	return nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type fakeBlob struct {
	mu        sync.Mutex
	objects   map[string][]byte
	putErr    error
	deleteErr error
	puts      int
	deletes   int
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: map[string][]byte{}}
}

func (b *fakeBlob) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.putErr != nil {
		return b.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	return nil
}

func (b *fakeBlob) Open(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBlob) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes++
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.objects, key)
	return nil
}

func (b *fakeBlob) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

var (
	userA  = &access.Identity{ID: 10, Name: "A. Pérez", Email: "aperez@umoar.edu.sv", Role: access.RoleUser}
	userB  = &access.Identity{ID: 11, Name: "B. López", Email: "blopez@umoar.edu.sv", Role: access.RoleUser}
	admin  = &access.Identity{ID: 1, Name: "Admin", Email: "admin@umoar.edu.sv", Role: access.RoleAdmin}
	pdfRaw = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
)

type fixture struct {
	svc   *Service
	repo  *fakeRepo
	blobs *fakeBlob
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	orig := countPages
	countPages = func(io.ReadSeeker) (int, error) { return 1, nil }
	t.Cleanup(func() { countPages = orig })

	repo := newFakeRepo()
	blobs := newFakeBlob()
	return &fixture{
		svc:   NewService(repo, blobs, logging.Discard(), opts),
		repo:  repo,
		blobs: blobs,
	}
}

func pdfUpload(name string, data []byte) *Upload {
	return &Upload{
		Name:        name,
		ContentType: PDFContentType,
		Size:        int64(len(data)),
		Content:     bytes.NewReader(data),
	}
}

func thesisMeta(title string) Metadata {
	return Metadata{Title: title, Author: "A. Pérez", Career: "CS", Type: TypeInstitucional}
}

func (f *fixture) mustCreate(t *testing.T, who *access.Identity, title string) *Created {
	t.Helper()
	created, err := f.svc.Create(context.Background(), who, pdfUpload("Thesis.pdf", pdfRaw), thesisMeta(title))
	if err != nil {
		t.Fatalf("Create(%q) error: %v", title, err)
	}
	return created
}

var errBoom = errors.New("boom")
