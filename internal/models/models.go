package models

import (
	"encoding/json"
	"time"
)

// SourceType identifies how a source's documents arrive.
type SourceType string

const (
	SourceRSS     SourceType = "rss"
	SourcePodcast SourceType = "podcast"
	SourceManual  SourceType = "manual"
)

// TranscriptStatus tracks how much of a document's audio has been transcribed.
type TranscriptStatus string

const (
	TranscriptNone     TranscriptStatus = "none"
	TranscriptPending  TranscriptStatus = "pending"
	TranscriptPartial  TranscriptStatus = "partial"
	TranscriptComplete TranscriptStatus = "complete"
)

// IngestStatus is the document-level ingestion outcome.
type IngestStatus string

const (
	IngestPending IngestStatus = "pending"
	IngestOK      IngestStatus = "ok"
	IngestFailed  IngestStatus = "failed"
)

// SegmentStatus is the editorial state of a segment.
type SegmentStatus string

const (
	SegmentRaw        SegmentStatus = "raw"
	SegmentFinal      SegmentStatus = "final"
	SegmentSuperseded SegmentStatus = "superseded"
)

// OffsetKind says what a segment's start/end offsets index into.
type OffsetKind string

const (
	OffsetText    OffsetKind = "text"
	OffsetHTML    OffsetKind = "html"
	OffsetSeconds OffsetKind = "seconds"
)

// Verdict is the outcome of analyzing a segment against a hypothesis.
type Verdict string

const (
	VerdictConfirms   Verdict = "confirms"
	VerdictRefutes    Verdict = "refutes"
	VerdictNuances    Verdict = "nuances"
	VerdictIrrelevant Verdict = "irrelevant"
	VerdictNone       Verdict = "none"
)

// AuthoredBy distinguishes human-saved analyses from agent-produced ones.
type AuthoredBy string

const (
	AuthoredByHuman AuthoredBy = "human"
	AuthoredByAgent AuthoredBy = "agent"
)

// ReferenceType categorizes a hypothesis's external reference. It drives the
// reference-cache TTL: papers and books change rarely, websites do not.
type ReferenceType string

const (
	RefPaper   ReferenceType = "paper"
	RefArticle ReferenceType = "article"
	RefBook    ReferenceType = "book"
	RefWebsite ReferenceType = "website"
	RefNone    ReferenceType = "none"
)

// TranscriptionProvider selects the speech-to-text backend.
type TranscriptionProvider string

const (
	ProviderOpenAI   TranscriptionProvider = "openai"
	ProviderAssembly TranscriptionProvider = "assembly"
)

// Job statuses for the two queue tables.
const (
	JobQueued     = "queued"
	JobPending    = "pending"
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// AnalysisMode reports whether a check used the full reference text.
type AnalysisMode string

const (
	ModeSummary       AnalysisMode = "summary"
	ModeFullReference AnalysisMode = "full_reference"
)

// SuggestionSource says whether a suggestion reuses a stored hypothesis.
type SuggestionSource string

const (
	SuggestionExisting  SuggestionSource = "existing"
	SuggestionGenerated SuggestionSource = "generated"
)

// FreshnessCurrent / FreshnessStale label a link relative to its hypothesis.
const (
	FreshnessCurrent = "current"
	FreshnessStale   = "stale"
)

// Source is a feed definition, created out-of-band.
type Source struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Type            SourceType `json:"type"`
	FeedURL         *string    `json:"feed_url"`
	IsActive        bool       `json:"is_active"`
	PollIntervalMin int        `json:"poll_interval_minutes"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Asset is one media artifact attached to a document: the original audio
// enclosure, or a transcript produced for some window of it.
type Asset struct {
	Type         string   `json:"type"`
	URL          string   `json:"url,omitempty"`
	Duration     *float64 `json:"duration,omitempty"`
	StartSeconds *float64 `json:"start_seconds,omitempty"`
	EndSeconds   *float64 `json:"end_seconds,omitempty"`
	Text         string   `json:"text,omitempty"`
	Provider     string   `json:"provider,omitempty"`
}

// Document is an ingested artifact.
type Document struct {
	ID                string           `json:"id"`
	SourceID          *string          `json:"source_id"`
	ExternalID        *string          `json:"external_id"`
	Title             string           `json:"title"`
	Author            *string          `json:"author"`
	PublishedAt       *time.Time       `json:"published_at"`
	OriginalURL       *string          `json:"original_url"`
	OriginalMediaType *string          `json:"original_media_type"`
	ContentText       *string          `json:"content_text,omitempty"`
	ContentHTML       *string          `json:"content_html,omitempty"`
	Assets            []Asset          `json:"assets"`
	TranscriptStatus  TranscriptStatus `json:"transcript_status"`
	IngestStatus      IngestStatus     `json:"ingest_status"`
	IngestMethod      *string          `json:"ingest_method,omitempty"`
	IsArchived        bool             `json:"is_archived"`
	SegmentCount      int              `json:"segment_count,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Segment is an atomic excerpt of a document.
type Segment struct {
	ID            string          `json:"id"`
	DocumentID    string          `json:"document_id"`
	Text          string          `json:"text"`
	ContentHTML   *string         `json:"content_html,omitempty"`
	StartOffset   *int            `json:"start_offset"`
	EndOffset     *int            `json:"end_offset"`
	OffsetKind    OffsetKind      `json:"offset_kind"`
	SegmentStatus SegmentStatus   `json:"segment_status"`
	Version       int             `json:"version"`
	Labels        []string        `json:"labels,omitempty"`
	Provenance    json.RawMessage `json:"provenance,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Hypothesis is a standing testable proposition.
type Hypothesis struct {
	ID             string        `json:"id"`
	HypothesisText string        `json:"hypothesis_text"`
	Description    *string       `json:"description"`
	ReferenceURL   *string       `json:"reference_url"`
	ReferenceType  ReferenceType `json:"reference_type"`
	EvidenceCount  int           `json:"evidence_count,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// HypothesisVersion is an append-only pre-image snapshot recorded on every
// content edit.
type HypothesisVersion struct {
	ID             string        `json:"id"`
	HypothesisID   string        `json:"hypothesis_id"`
	HypothesisText string        `json:"hypothesis_text"`
	Description    *string       `json:"description"`
	ReferenceURL   *string       `json:"reference_url"`
	ReferenceType  ReferenceType `json:"reference_type"`
	RecordedAt     time.Time     `json:"recorded_at"`
	RecordedBy     string        `json:"recorded_by"`
}

// Link is the stable latest-state row for a (hypothesis, segment) pair.
type Link struct {
	ID           string     `json:"id"`
	HypothesisID string     `json:"hypothesis_id"`
	SegmentID    string     `json:"segment_id"`
	Verdict      Verdict    `json:"verdict"`
	AnalysisText *string    `json:"analysis_text"`
	AuthoredBy   AuthoredBy `json:"authored_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Run is an append-only record of one saved analysis, with the hypothesis
// fields snapshotted as they stood when the run was committed.
type Run struct {
	ID                         string        `json:"id"`
	LinkID                     string        `json:"link_id"`
	HypothesisID               string        `json:"hypothesis_id"`
	SegmentID                  string        `json:"segment_id"`
	Verdict                    Verdict       `json:"verdict"`
	AnalysisText               *string       `json:"analysis_text"`
	AuthoredBy                 AuthoredBy    `json:"authored_by"`
	HypothesisTextSnapshot     string        `json:"hypothesis_text_snapshot"`
	DescriptionSnapshot        *string       `json:"description_snapshot"`
	ReferenceURLSnapshot       *string       `json:"reference_url_snapshot"`
	ReferenceTypeSnapshot      ReferenceType `json:"reference_type_snapshot"`
	HypothesisUpdatedAtSnapshot time.Time    `json:"hypothesis_updated_at_snapshot"`
	CreatedAt                  time.Time     `json:"created_at"`
}

// Question is a navigation label grouping related hypotheses.
type Question struct {
	ID              string    `json:"id"`
	QuestionText    string    `json:"question_text"`
	HypothesisCount int       `json:"hypothesis_count,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ReferenceCacheEntry is the cached full text of a hypothesis's reference.
type ReferenceCacheEntry struct {
	HypothesisID   string    `json:"hypothesis_id"`
	FullText       string    `json:"full_text"`
	CharacterCount int       `json:"character_count"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// IngestionJob is one row of the ingestion queue.
type IngestionJob struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"source_id"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TranscriptionJob is one row of the transcription queue.
type TranscriptionJob struct {
	ID           string                `json:"id"`
	DocumentID   string                `json:"document_id"`
	Provider     TranscriptionProvider `json:"provider"`
	Model        *string               `json:"model"`
	StartSeconds *float64              `json:"start_seconds"`
	EndSeconds   *float64              `json:"end_seconds"`
	Status       string                `json:"status"`
	ResultText   *string               `json:"result_text"`
	ErrorMessage *string               `json:"error_message"`
	Metadata     json.RawMessage       `json:"metadata,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Suggestion is one Suggester output row.
type Suggestion struct {
	HypothesisID   *string          `json:"hypothesis_id"`
	HypothesisText string           `json:"hypothesis_text"`
	Description    *string          `json:"description"`
	Source         SuggestionSource `json:"source"`
	EvidenceCount  int              `json:"evidence_count"`
}

// EvidenceItem is one entry of an evidence commit payload.
type EvidenceItem struct {
	HypothesisID   *string    `json:"hypothesis_id"`
	HypothesisText string     `json:"hypothesis_text"`
	Description    *string    `json:"description"`
	Verdict        *string    `json:"verdict"`
	AnalysisText   *string    `json:"analysis_text"`
	AuthoredBy     AuthoredBy `json:"authored_by"`
}

// EvidenceRow is one link enriched for the hypothesis evidence view.
type EvidenceRow struct {
	Link                Link      `json:"link"`
	SegmentText         string    `json:"segment_text"`
	DocumentID          string    `json:"document_id"`
	DocumentTitle       string    `json:"document_title"`
	FreshnessStatus     string    `json:"freshness_status"`
	HypothesisUpdatedAt time.Time `json:"hypothesis_updated_at"`
}

// AnalystPOV is a draft point-of-view document seeded from a segment.
type AnalystPOV struct {
	ID        string    `json:"id"`
	SegmentID *string   `json:"segment_id"`
	Status    string    `json:"status"`
	Content   *string   `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Freshness reports whether a link's saved analysis predates the hypothesis's
// last edit.
func Freshness(linkUpdatedAt, hypothesisUpdatedAt time.Time) string {
	if linkUpdatedAt.Before(hypothesisUpdatedAt) {
		return FreshnessStale
	}
	return FreshnessCurrent
}
