package document

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/gateleaf/ticket-engine/internal/model"
)

// fakeEngine drives the pipeline without pdfcpu. Pages listed in
// failExtract refuse structural extraction, forcing the raster path.
type fakeEngine struct {
	pages       int
	invalid     bool
	failExtract map[int]bool
}

func (f *fakeEngine) Validate(data []byte) error {
	if f.invalid {
		return errors.New("xref table corrupt")
	}
	return nil
}

func (f *fakeEngine) PageCount(data []byte) (int, error) { return f.pages, nil }

func (f *fakeEngine) ExtractPage(data []byte, page int) ([]byte, error) {
	if f.failExtract[page] {
		return nil, errors.New("page tree unsupported")
	}
	return []byte(fmt.Sprintf("extracted-%d", page)), nil
}

func (f *fakeEngine) FromImage(png []byte) ([]byte, error) {
	return append([]byte("pdf-from-"), png...), nil
}

type fakeRenderer struct {
	failPages map[int]bool
}

func (f *fakeRenderer) RenderPNG(data []byte, page int, dpi float64) ([]byte, error) {
	if f.failPages[page] {
		return nil, errors.New("render error")
	}
	return []byte(fmt.Sprintf("png-%d@%.0f", page, dpi)), nil
}

type memBlob struct {
	objects map[string][]byte
}

func newMemBlob() *memBlob { return &memBlob{objects: map[string][]byte{}} }

func (m *memBlob) Upload(ctx context.Context, key, contentType string, body []byte) error {
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

func (m *memBlob) Download(ctx context.Context, key string) ([]byte, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return b, nil
}

func (m *memBlob) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memBlob) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://blobs.test/" + key, nil
}

type fakeSessions struct {
	sessions  map[string]model.IngestSession
	nextID    uint64
	created   []model.TicketArtifact
	committed map[string]map[int]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		sessions:  map[string]model.IngestSession{},
		committed: map[string]map[int]bool{},
	}
}

func (f *fakeSessions) CreateSession(ctx context.Context, s *model.IngestSession) error {
	f.sessions[s.ID] = *s
	return nil
}

func (f *fakeSessions) SessionByID(ctx context.Context, id string) (model.IngestSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return model.IngestSession{}, sql.ErrNoRows
	}
	return s, nil
}

func (f *fakeSessions) CreateArtifact(ctx context.Context, t *model.TicketArtifact) error {
	f.nextID++
	t.ID = f.nextID
	f.created = append(f.created, *t)
	return nil
}

func (f *fakeSessions) CommittedPages(ctx context.Context, sessionID string) ([]int, error) {
	var pages []int
	for page := range f.committed[sessionID] {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages, nil
}

func (f *fakeSessions) MarkPageCommitted(ctx context.Context, sessionID string, page int) error {
	if f.committed[sessionID] == nil {
		f.committed[sessionID] = map[int]bool{}
	}
	f.committed[sessionID][page] = true
	return nil
}

func (f *fakeSessions) DeleteSession(ctx context.Context, id string) error {
	if _, ok := f.sessions[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.sessions, id)
	return nil
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	source := []byte("%PDF-1.7 three pages")

	t.Run("stages the source and renders previews", func(t *testing.T) {
		blobs := newMemBlob()
		sessions := newFakeSessions()
		p := NewPipeline(&fakeEngine{pages: 3}, &fakeRenderer{}, blobs, sessions)

		session, previews, err := p.Ingest(ctx, 1, 10, source)
		if err != nil {
			t.Fatalf("ingest: %v", err)
		}
		if session.PageCount != 3 {
			t.Fatalf("page count = %d, want 3", session.PageCount)
		}
		if !bytes.Equal(blobs.objects[session.ObjectKey], source) {
			t.Fatal("staged blob does not match the source")
		}
		if len(previews) != 3 {
			t.Fatalf("previews = %d, want 3", len(previews))
		}
		for i, pv := range previews {
			if pv.PageNumber != i+1 || len(pv.PNG) == 0 {
				t.Fatalf("preview %d = %+v", i, pv)
			}
		}
	})

	t.Run("rejects invalid documents before staging", func(t *testing.T) {
		blobs := newMemBlob()
		p := NewPipeline(&fakeEngine{invalid: true}, &fakeRenderer{}, blobs, newFakeSessions())

		if _, _, err := p.Ingest(ctx, 1, 10, source); !errors.Is(err, ErrInvalidDocument) {
			t.Fatalf("err = %v, want ErrInvalidDocument", err)
		}
		if len(blobs.objects) != 0 {
			t.Fatal("invalid document was staged")
		}
	})

	t.Run("rejects empty documents", func(t *testing.T) {
		p := NewPipeline(&fakeEngine{pages: 0}, &fakeRenderer{}, newMemBlob(), newFakeSessions())
		if _, _, err := p.Ingest(ctx, 1, 10, source); !errors.Is(err, ErrEmptyDocument) {
			t.Fatalf("err = %v, want ErrEmptyDocument", err)
		}
	})

	t.Run("preview failures do not abort the ingest", func(t *testing.T) {
		p := NewPipeline(&fakeEngine{pages: 2}, &fakeRenderer{failPages: map[int]bool{2: true}}, newMemBlob(), newFakeSessions())

		_, previews, err := p.Ingest(ctx, 1, 10, source)
		if err != nil {
			t.Fatalf("ingest: %v", err)
		}
		if previews[0].PNG == nil || previews[1].PNG != nil {
			t.Fatalf("previews = %+v", previews)
		}
	})
}

func TestCommitPages(t *testing.T) {
	ctx := context.Background()
	source := []byte("%PDF-1.7 staged")

	stage := func(engine *fakeEngine, renderer *fakeRenderer) (*Pipeline, *memBlob, *fakeSessions, string) {
		blobs := newMemBlob()
		sessions := newFakeSessions()
		p := NewPipeline(engine, renderer, blobs, sessions)
		session, _, err := p.Ingest(ctx, 1, 10, source)
		if err != nil {
			t.Fatalf("ingest: %v", err)
		}
		return p, blobs, sessions, session.ID
	}

	t.Run("extraction with rasterized fallback and isolated failure", func(t *testing.T) {
		engine := &fakeEngine{pages: 3, failExtract: map[int]bool{2: true, 3: true}}
		renderer := &fakeRenderer{failPages: map[int]bool{3: true}}
		p, blobs, sessions, id := stage(engine, renderer)

		results, err := p.CommitPages(ctx, id, []int{1, 2, 3})
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("results = %d, want 3", len(results))
		}
		wantOutcomes := []model.PageOutcome{model.OutcomeExtracted, model.OutcomeRasterized, model.OutcomeFailed}
		for i, r := range results {
			if r.Outcome != wantOutcomes[i] {
				t.Fatalf("page %d outcome = %s, want %s", r.PageNumber, r.Outcome, wantOutcomes[i])
			}
		}
		if results[2].Error == "" {
			t.Fatal("failed page carries no error message")
		}
		if results[2].TicketID != 0 {
			t.Fatal("failed page produced an artifact")
		}
		if len(sessions.created) != 2 {
			t.Fatalf("artifacts = %d, want 2", len(sessions.created))
		}
		for _, r := range results[:2] {
			if _, ok := blobs.objects[r.ObjectKey]; !ok {
				t.Fatalf("artifact blob missing for page %d", r.PageNumber)
			}
		}
	})

	t.Run("single-page source is stored verbatim as extracted", func(t *testing.T) {
		// Extraction is rigged to fail; a single-page commit must not
		// even attempt it.
		engine := &fakeEngine{pages: 1, failExtract: map[int]bool{1: true}}
		p, blobs, _, id := stage(engine, &fakeRenderer{})

		results, err := p.CommitPages(ctx, id, []int{1})
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		if results[0].Outcome != model.OutcomeExtracted {
			t.Fatalf("outcome = %s, want %s", results[0].Outcome, model.OutcomeExtracted)
		}
		if !bytes.Equal(blobs.objects[results[0].ObjectKey], source) {
			t.Fatal("artifact differs from the single-page source")
		}
	})

	t.Run("selection is deduplicated and sorted", func(t *testing.T) {
		p, _, sessions, id := stage(&fakeEngine{pages: 3}, &fakeRenderer{})

		results, err := p.CommitPages(ctx, id, []int{3, 1, 3})
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		if len(results) != 2 || results[0].PageNumber != 1 || results[1].PageNumber != 3 {
			t.Fatalf("results = %+v", results)
		}
		if len(sessions.created) != 2 {
			t.Fatalf("artifacts = %d, want 2", len(sessions.created))
		}
	})

	t.Run("out-of-range selection fails before any artifact", func(t *testing.T) {
		p, _, sessions, id := stage(&fakeEngine{pages: 3}, &fakeRenderer{})

		if _, err := p.CommitPages(ctx, id, []int{1, 4}); !errors.Is(err, ErrPageOutOfRange) {
			t.Fatalf("err = %v, want ErrPageOutOfRange", err)
		}
		if len(sessions.created) != 0 {
			t.Fatal("artifacts created despite rejected selection")
		}
	})

	t.Run("empty selection is rejected", func(t *testing.T) {
		p, _, sessions, id := stage(&fakeEngine{pages: 3}, &fakeRenderer{})

		if _, err := p.CommitPages(ctx, id, nil); !errors.Is(err, ErrNoPagesSelected) {
			t.Fatalf("err = %v, want ErrNoPagesSelected", err)
		}
		if len(sessions.created) != 0 {
			t.Fatal("artifacts created from an empty selection")
		}
	})

	t.Run("a committed page cannot be committed again", func(t *testing.T) {
		p, blobs, sessions, id := stage(&fakeEngine{pages: 2}, &fakeRenderer{})

		if _, err := p.CommitPages(ctx, id, []int{1}); err != nil {
			t.Fatalf("first commit: %v", err)
		}
		if _, err := p.CommitPages(ctx, id, []int{1, 2}); !errors.Is(err, ErrPageAlreadyDone) {
			t.Fatalf("second commit err = %v, want ErrPageAlreadyDone", err)
		}
		if len(sessions.created) != 1 {
			t.Fatalf("artifacts = %d, want 1", len(sessions.created))
		}
		// One staged source plus one artifact; a duplicate would have
		// overwritten the artifact blob in place.
		if len(blobs.objects) != 2 {
			t.Fatalf("blobs = %d, want 2", len(blobs.objects))
		}
	})

	t.Run("failed pages stay retryable", func(t *testing.T) {
		engine := &fakeEngine{pages: 2, failExtract: map[int]bool{2: true}}
		renderer := &fakeRenderer{failPages: map[int]bool{2: true}}
		p, _, sessions, id := stage(engine, renderer)

		results, err := p.CommitPages(ctx, id, []int{1, 2})
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		if results[1].Outcome != model.OutcomeFailed {
			t.Fatalf("page 2 outcome = %s, want %s", results[1].Outcome, model.OutcomeFailed)
		}

		delete(renderer.failPages, 2)
		results, err = p.CommitPages(ctx, id, []int{2})
		if err != nil {
			t.Fatalf("retry: %v", err)
		}
		if results[0].Outcome != model.OutcomeRasterized {
			t.Fatalf("retried outcome = %s, want %s", results[0].Outcome, model.OutcomeRasterized)
		}
		if len(sessions.created) != 2 {
			t.Fatalf("artifacts = %d, want 2", len(sessions.created))
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		p := NewPipeline(&fakeEngine{pages: 1}, &fakeRenderer{}, newMemBlob(), newFakeSessions())
		if _, err := p.CommitPages(ctx, "01JUNKJUNKJUNKJUNKJUNKJUNK", []int{1}); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("err = %v, want ErrSessionNotFound", err)
		}
	})
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlob()
	sessions := newFakeSessions()
	p := NewPipeline(&fakeEngine{pages: 2}, &fakeRenderer{}, blobs, sessions)

	session, _, err := p.Ingest(ctx, 1, 10, []byte("%PDF-1.7"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := p.Discard(ctx, session.ID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, ok := blobs.objects[session.ObjectKey]; ok {
		t.Fatal("staging blob survived the discard")
	}
	if err := p.Discard(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second discard err = %v, want ErrSessionNotFound", err)
	}
}
