package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/models"
	"github.com/signalnoise/workbench/internal/storage"
)

// handleListDocuments returns active documents with their segment counts.
func (s *APIServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": emptyList(docs),
	})
}

type ingestURLPayload struct {
	URL   string  `json:"url"`
	Title *string `json:"title"`
}

// handleIngestURL crawls a single page and stores it as a manual document.
func (s *APIServer) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var payload ingestURLPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	parsed, err := url.ParseRequestURI(payload.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		s.writeError(w, r, apperr.New(apperr.Validation, "url must be a valid http(s) URL"))
		return
	}

	text, _, err := s.crawler.FetchText(r.Context(), payload.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	title := payload.URL
	if payload.Title != nil && strings.TrimSpace(*payload.Title) != "" {
		title = *payload.Title
	}
	mediaType := "article"
	method := "direct_url"
	doc, err := s.store.CreateDocument(r.Context(), models.Document{
		Title:             title,
		OriginalURL:       &payload.URL,
		OriginalMediaType: &mediaType,
		ContentText:       &text,
		IngestMethod:      &method,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

type documentPatchPayload struct {
	Title       *string    `json:"title"`
	Author      *string    `json:"author"`
	PublishedAt *time.Time `json:"published_at"`
	SourceID    *string    `json:"source_id"`
}

// handleUpdateDocument applies a partial metadata update.
func (s *APIServer) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var payload documentPatchPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}

	doc, err := s.store.UpdateDocumentMetadata(r.Context(), r.PathValue("id"), storage.DocumentMetadataPatch{
		Title:       payload.Title,
		Author:      payload.Author,
		PublishedAt: payload.PublishedAt,
		SourceID:    payload.SourceID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// handleArchiveDocument soft-deletes a document. Its segments and evidence
// stay intact.
func (s *APIServer) handleArchiveDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ArchiveDocument(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"archived": true})
}

// handleDocumentContent returns the document body for the reader view.
func (s *APIServer) handleDocumentContent(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":           doc.ID,
		"title":        doc.Title,
		"content_text": doc.ContentText,
		"content_html": doc.ContentHTML,
	})
}

// handleDocumentSegments returns a document's segments in document order.
func (s *APIServer) handleDocumentSegments(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.GetDocument(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	segments, err := s.store.ListSegmentsForDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"segments": emptyList(segments),
	})
}
