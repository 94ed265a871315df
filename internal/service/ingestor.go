package service

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/minio/highwayhash"
	"github.com/oklog/ulid/v2"

	"studyrag/internal/chunker"
	"studyrag/internal/domain"
	"studyrag/internal/extract"
	"studyrag/internal/summarizer"
	"studyrag/internal/vectorstore"
)

// DefaultMaxBytes caps a single upload.
const DefaultMaxBytes = 10 << 20

var pathKey = []byte("studyrag/service/document/paths.")

// Document describes an ingested document.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int       `json:"size"`
	Pages      int       `json:"pages"`
	Chunks     int       `json:"chunks"`
	Summary    string    `json:"summary,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// IngestRequest carries raw document bytes. An empty DocumentID gets a
// fresh ULID; a known one replaces that document.
type IngestRequest struct {
	DocumentID string
	Name       string
	Data       []byte
}

// IngestSettings bound uploads and summaries.
type IngestSettings struct {
	MaxBytes         int64
	SummarySentences int
}

// Ingestor turns uploaded bytes into indexed chunk sets and keeps a catalog
// of what has been ingested.
type Ingestor struct {
	chunker    *chunker.WindowChunker
	index      vectorstore.Storage
	summarizer domain.Summarizer
	settings   IngestSettings

	mu   sync.RWMutex
	docs map[string]Document
}

func NewIngestor(c *chunker.WindowChunker, index vectorstore.Storage, s domain.Summarizer, settings IngestSettings) *Ingestor {
	if settings.MaxBytes <= 0 {
		settings.MaxBytes = DefaultMaxBytes
	}
	if settings.SummarySentences <= 0 {
		settings.SummarySentences = summarizer.DefaultSentences
	}
	return &Ingestor{
		chunker:    c,
		index:      index,
		summarizer: s,
		settings:   settings,
		docs:       make(map[string]Document),
	}
}

// Ingest extracts, chunks and indexes one document. Nothing is stored when
// any step fails.
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*Document, error) {
	if int64(len(req.Data)) > i.settings.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", domain.ErrDocumentTooLarge, len(req.Data), i.settings.MaxBytes)
	}
	pages, err := extract.Pages(req.Data)
	if err != nil {
		return nil, err
	}
	chunks := i.chunker.ChunkPages(pages)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no text after normalization", domain.ErrUnsupportedDocument)
	}

	id := strings.TrimSpace(req.DocumentID)
	if id == "" {
		id = ulid.Make().String()
	}
	if err := i.index.AddDocument(ctx, id, chunks); err != nil {
		return nil, err
	}

	summary, err := i.summarizer.Summarize(strings.Join(pages, "\n"), i.settings.SummarySentences)
	if err != nil {
		// summaries are advisory; the document is already searchable
		logger.Warnw("summarize document failed", "document_id", id, "error", err.Error())
	}

	doc := Document{
		ID:         id,
		Name:       req.Name,
		Size:       len(req.Data),
		Pages:      len(pages),
		Chunks:     len(chunks),
		Summary:    summary,
		UploadedAt: time.Now().UTC(),
	}
	if doc.Name == "" {
		doc.Name = id
	}
	i.mu.Lock()
	i.docs[id] = doc
	i.mu.Unlock()

	logger.Infow("document ingested",
		"document_id", id,
		"name", doc.Name,
		"bytes", doc.Size,
		"pages", doc.Pages,
		"chunks", doc.Chunks,
	)
	return &doc, nil
}

// IngestFile ingests a file from disk. The document ID is derived from the
// cleaned path so re-ingesting the same file replaces it.
func (i *Ingestor) IngestFile(ctx context.Context, path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > i.settings.MaxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", domain.ErrDocumentTooLarge, path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return i.Ingest(ctx, IngestRequest{DocumentID: PathID(path), Name: filepath.Base(path), Data: data})
}

// IngestPaths ingests every file matched by the given paths or glob patterns.
func (i *Ingestor) IngestPaths(ctx context.Context, patterns []string) ([]Document, error) {
	var out []Document
	for _, p := range patterns {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			doc, err := i.IngestFile(ctx, m)
			if err != nil {
				return out, fmt.Errorf("ingest %s: %w", m, err)
			}
			out = append(out, *doc)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no documents found", domain.ErrUnsupportedDocument)
	}
	return out, nil
}

// PathID returns a stable document ID for a file path.
func PathID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], highwayhash.Sum64([]byte(abs), pathKey))
	return hex.EncodeToString(b[:])
}

// Get returns the catalog entry for id.
func (i *Ingestor) Get(id string) (Document, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	doc, ok := i.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	return doc, nil
}

// List returns catalog entries, oldest first.
func (i *Ingestor) List() []Document {
	i.mu.RLock()
	out := make([]Document, 0, len(i.docs))
	for _, d := range i.docs {
		out = append(out, d)
	}
	i.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool {
		if !out[a].UploadedAt.Equal(out[b].UploadedAt) {
			return out[a].UploadedAt.Before(out[b].UploadedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out
}

// Remove drops a document from the catalog and the index.
func (i *Ingestor) Remove(id string) error {
	i.mu.Lock()
	_, ok := i.docs[id]
	delete(i.docs, id)
	i.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	i.index.RemoveDocument(id)
	logger.Infow("document removed", "document_id", id)
	return nil
}

// Restore registers documents already present in the index, for example
// after loading a snapshot.
func (i *Ingestor) Restore(docs []Document) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, d := range docs {
		i.docs[d.ID] = d
	}
}
