package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"studyrag/internal/domain"
	"studyrag/internal/service"
)

// Answerer answers queries against ingested documents.
type Answerer interface {
	AnswerQuery(ctx context.Context, q domain.Query) (*domain.Answer, error)
}

// Catalog ingests and tracks documents.
type Catalog interface {
	Ingest(ctx context.Context, req service.IngestRequest) (*service.Document, error)
	Get(id string) (service.Document, error)
	List() []service.Document
	Remove(id string) error
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler serves the study API.
type Handler struct {
	answerer       Answerer
	catalog        Catalog
	requestTimeout time.Duration
	maxUploadBytes int64
}

// NewHandler creates a Handler. Non-positive limits select the defaults.
func NewHandler(answerer Answerer, catalog Catalog, requestTimeout time.Duration, maxUploadBytes int64) *Handler {
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = service.DefaultMaxBytes
	}
	return &Handler{
		answerer:       answerer,
		catalog:        catalog,
		requestTimeout: requestTimeout,
		maxUploadBytes: maxUploadBytes,
	}
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDocumentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidQuery),
		errors.Is(err, domain.ErrInvalidMode),
		errors.Is(err, domain.ErrUnsupportedDocument),
		errors.Is(err, domain.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmbeddingProvider),
		errors.Is(err, domain.ErrGenerationProvider),
		errors.Is(err, domain.ErrMalformedGeneration),
		errors.Is(err, domain.ErrEmptyGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusRequestTimeout {
		msg = "request timeout: the request took too long to process, please try again"
	}
	_ = c.Error(err)
	c.JSON(status, ErrorResponse{Code: status, Message: msg})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: data})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: http.StatusBadRequest, Message: err.Error()})
}

// Upload ingests a multipart "file" field. An optional "id" field replaces
// an existing document.
func (h *Handler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	if fh.Size > h.maxUploadBytes {
		fail(c, domain.ErrDocumentTooLarge)
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()
	doc, err := h.catalog.Ingest(ctx, service.IngestRequest{
		DocumentID: c.PostForm("id"),
		Name:       fh.Filename,
		Data:       data,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, doc)
}

// ListDocuments returns every ingested document.
func (h *Handler) ListDocuments(c *gin.Context) {
	ok(c, h.catalog.List())
}

// GetDocument returns one document or 404.
func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.catalog.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, doc)
}

// DeleteDocument removes a document. Removing an unknown document succeeds.
func (h *Handler) DeleteDocument(c *gin.Context) {
	if err := h.catalog.Remove(c.Param("id")); err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		fail(c, err)
		return
	}
	ok(c, gin.H{"id": c.Param("id")})
}

// ChatRequest represents a chat request.
type ChatRequest struct {
	Query               string        `json:"query" binding:"required"`
	DocumentIDs         []string      `json:"documentIds" binding:"required"`
	ConversationHistory []domain.Turn `json:"conversationHistory"`
}

// ChatResponse carries the reply and the leading context excerpts.
type ChatResponse struct {
	Response string   `json:"response"`
	Context  []string `json:"context"`
}

// Chat answers a conversational question.
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ans, err := h.answer(c, domain.Query{
		Text:        req.Query,
		DocumentIDs: req.DocumentIDs,
		History:     req.ConversationHistory,
		Mode:        domain.ModeChat,
	})
	if err != nil {
		fail(c, err)
		return
	}
	excerpts := ans.Sources
	if len(excerpts) > 2 {
		excerpts = excerpts[:2]
	}
	ok(c, ChatResponse{Response: ans.Text, Context: excerpts})
}

// QuizRequest represents a quiz generation request.
type QuizRequest struct {
	DocumentIDs []string `json:"documentIds" binding:"required"`
	Topic       string   `json:"topic"`
}

// Quiz generates a five-question multiple-choice quiz.
func (h *Handler) Quiz(c *gin.Context) {
	var req QuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ans, err := h.answer(c, domain.Query{DocumentIDs: req.DocumentIDs, Topic: req.Topic, Mode: domain.ModeQuiz})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"quiz": ans.Quiz, "sourcesUsed": ans.Sources})
}

// QuestionRequest represents a hint or answer request.
type QuestionRequest struct {
	Question    string   `json:"question" binding:"required"`
	DocumentIDs []string `json:"documentIds" binding:"required"`
}

// Hint nudges the student toward an answer.
func (h *Handler) Hint(c *gin.Context) {
	h.question(c, domain.ModeHint, "hint")
}

// Answer gives a full worked answer.
func (h *Handler) Answer(c *gin.Context) {
	h.question(c, domain.ModeAnswer, "answer")
}

func (h *Handler) question(c *gin.Context, mode domain.Mode, field string) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ans, err := h.answer(c, domain.Query{Text: req.Question, DocumentIDs: req.DocumentIDs, Mode: mode})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{field: ans.Text, "sourcesUsed": ans.Sources})
}

func (h *Handler) answer(c *gin.Context, q domain.Query) (*domain.Answer, error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()
	ans, err := h.answerer.AnswerQuery(ctx, q)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, errors.Join(err, context.DeadlineExceeded)
	}
	return ans, err
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	ok(c, gin.H{"status": "ok", "documents": len(h.catalog.List())})
}
