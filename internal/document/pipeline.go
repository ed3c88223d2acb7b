package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/oklog/ulid/v2"

	"github.com/gateleaf/ticket-engine/internal/model"
	"github.com/gateleaf/ticket-engine/internal/storage"
)

// Errors surfaced by the pipeline. Page-level extraction failures are
// not errors; they are reported per page in the PageResult slice.
var (
	ErrInvalidDocument = errors.New("document is not a valid PDF")
	ErrEmptyDocument   = errors.New("document has no pages")
	ErrSessionNotFound = errors.New("ingest session not found")
	ErrPageOutOfRange  = errors.New("page number out of range")
	ErrNoPagesSelected = errors.New("no pages selected")
	ErrPageAlreadyDone = errors.New("page already committed")
)

// PreviewDPI is the default render resolution for selection previews.
// Kept low on purpose; previews are for picking pages, not printing.
const PreviewDPI = 72.0

// ArtifactDPI is the render resolution used by the rasterization
// fallback. High enough that barcodes stay scannable.
const ArtifactDPI = 300.0

// Engine is the structural PDF surface of the pipeline. PDFEngine is
// the pdfcpu-backed implementation.
type Engine interface {
	Validate(data []byte) error
	PageCount(data []byte) (int, error)
	ExtractPage(data []byte, page int) ([]byte, error)
	FromImage(png []byte) ([]byte, error)
}

// Renderer rasterizes one page to PNG. FitzRenderer is the MuPDF
// implementation.
type Renderer interface {
	RenderPNG(data []byte, page int, dpi float64) ([]byte, error)
}

// SessionStore persists ingest sessions, the artifact rows commits
// produce and the per-session record of which pages already committed.
// repository.IngestRepo is the MySQL implementation.
type SessionStore interface {
	CreateSession(ctx context.Context, s *model.IngestSession) error
	SessionByID(ctx context.Context, id string) (model.IngestSession, error)
	CreateArtifact(ctx context.Context, t *model.TicketArtifact) error
	CommittedPages(ctx context.Context, sessionID string) ([]int, error)
	MarkPageCommitted(ctx context.Context, sessionID string, page int) error
	DeleteSession(ctx context.Context, id string) error
}

// Pipeline is the two-phase ingest flow: Ingest stages a source
// document and returns page previews, CommitPages turns selected pages
// into claimable artifacts. Committing is deliberately separate so an
// admin can review previews and skip cover sheets or blank pages.
type Pipeline struct {
	engine   Engine
	renderer Renderer
	blobs    storage.BlobStore
	sessions SessionStore
}

// NewPipeline wires the pipeline from its parts.
func NewPipeline(engine Engine, renderer Renderer, blobs storage.BlobStore, sessions SessionStore) *Pipeline {
	return &Pipeline{engine: engine, renderer: renderer, blobs: blobs, sessions: sessions}
}

// Ingest validates the uploaded document, stages it in the blob store
// and records a session. Previews are rendered best effort; a page
// whose preview fails to render is returned with a nil image and can
// still be committed.
func (p *Pipeline) Ingest(ctx context.Context, eventID, ticketTypeID uint64, data []byte) (model.IngestSession, []model.PagePreview, error) {
	if err := p.engine.Validate(data); err != nil {
		return model.IngestSession{}, nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	pages, err := p.engine.PageCount(data)
	if err != nil {
		return model.IngestSession{}, nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if pages == 0 {
		return model.IngestSession{}, nil, ErrEmptyDocument
	}

	session := model.IngestSession{
		ID:           ulid.Make().String(),
		TicketTypeID: ticketTypeID,
		EventID:      eventID,
		PageCount:    pages,
	}
	session.ObjectKey = storage.StagingKey(session.ID)

	if err := p.blobs.Upload(ctx, session.ObjectKey, storage.ContentTypePDF, data); err != nil {
		return model.IngestSession{}, nil, fmt.Errorf("stage upload: %w", err)
	}
	if err := p.sessions.CreateSession(ctx, &session); err != nil {
		return model.IngestSession{}, nil, err
	}

	previews := make([]model.PagePreview, 0, pages)
	for page := 1; page <= pages; page++ {
		img, err := p.renderer.RenderPNG(data, page, PreviewDPI)
		if err != nil {
			log.Printf("document: preview render failed session=%s page=%d: %v", session.ID, page, err)
			img = nil
		}
		previews = append(previews, model.PagePreview{PageNumber: page, PNG: img})
	}
	return session, previews, nil
}

// CommitPages turns the selected pages of a staged session into
// artifacts. Pages are processed independently: one page failing both
// the structural and the raster path yields a FAILED result for that
// page and touches nothing else. Duplicate page numbers are collapsed;
// an empty, out-of-range or already-committed selection fails the
// whole call before any artifact is created, so a retry can only name
// pages that have not produced inventory yet.
func (p *Pipeline) CommitPages(ctx context.Context, sessionID string, pages []int) ([]model.PageResult, error) {
	session, err := p.sessions.SessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	selected, err := normalizePages(pages, session.PageCount)
	if err != nil {
		return nil, err
	}
	committed, err := p.sessions.CommittedPages(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(committed))
	for _, page := range committed {
		done[page] = true
	}
	for _, page := range selected {
		if done[page] {
			return nil, fmt.Errorf("%w: %d", ErrPageAlreadyDone, page)
		}
	}
	data, err := p.blobs.Download(ctx, session.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("stage download: %w", err)
	}

	results := make([]model.PageResult, 0, len(selected))
	for _, page := range selected {
		results = append(results, p.commitPage(ctx, session, data, page))
	}
	return results, nil
}

// commitPage produces one artifact. A single-page source is stored
// verbatim, keeping the original byte-exact.
func (p *Pipeline) commitPage(ctx context.Context, session model.IngestSession, data []byte, page int) model.PageResult {
	result := model.PageResult{PageNumber: page}

	var body []byte
	var err error
	switch {
	case session.PageCount == 1:
		body = data
		result.Outcome = model.OutcomeExtracted
	default:
		body, err = p.engine.ExtractPage(data, page)
		if err == nil {
			result.Outcome = model.OutcomeExtracted
			break
		}
		log.Printf("document: extraction failed session=%s page=%d: %v", session.ID, page, err)
		var img []byte
		img, err = p.renderer.RenderPNG(data, page, ArtifactDPI)
		if err == nil {
			body, err = p.engine.FromImage(img)
		}
		if err != nil {
			result.Outcome = model.OutcomeFailed
			result.Error = err.Error()
			return result
		}
		result.Outcome = model.OutcomeRasterized
	}

	key := storage.TicketKey(session.EventID, session.TicketTypeID, session.ID, page)
	if err := p.blobs.Upload(ctx, key, storage.ContentTypePDF, body); err != nil {
		result.Outcome = model.OutcomeFailed
		result.Error = err.Error()
		return result
	}
	artifact := model.TicketArtifact{
		EventID:      session.EventID,
		TicketTypeID: &session.TicketTypeID,
		ObjectKey:    key,
		PageNumber:   uint32(page),
	}
	if err := p.sessions.CreateArtifact(ctx, &artifact); err != nil {
		result.Outcome = model.OutcomeFailed
		result.Error = err.Error()
		return result
	}
	if err := p.sessions.MarkPageCommitted(ctx, session.ID, page); err != nil {
		// Artifact exists either way; an unrecorded commit would let a
		// retry issue the page twice, so it has to be visible.
		log.Printf("document: mark committed failed session=%s page=%d: %v", session.ID, page, err)
	}
	result.TicketID = artifact.ID
	result.ObjectKey = key
	return result
}

// Discard removes a staged session and its blob. Artifacts already
// committed from it are untouched.
func (p *Pipeline) Discard(ctx context.Context, sessionID string) error {
	session, err := p.sessions.SessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionNotFound
		}
		return err
	}
	if err := p.sessions.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	if err := p.blobs.Delete(ctx, session.ObjectKey); err != nil {
		// Row is gone; an orphaned staging blob only costs storage.
		log.Printf("document: staging blob delete failed session=%s: %v", sessionID, err)
	}
	return nil
}

// normalizePages sorts, deduplicates and bounds-checks a page
// selection. Callers must name their pages; an empty selection is
// malformed input, not a shorthand for every page.
func normalizePages(pages []int, pageCount int) ([]int, error) {
	if len(pages) == 0 {
		return nil, ErrNoPagesSelected
	}
	seen := make(map[int]bool, len(pages))
	out := make([]int, 0, len(pages))
	for _, page := range pages {
		if page < 1 || page > pageCount {
			return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, page, pageCount)
		}
		if seen[page] {
			continue
		}
		seen[page] = true
		out = append(out, page)
	}
	sort.Ints(out)
	return out, nil
}
