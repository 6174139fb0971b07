package storage

// schema is applied on startup. Every statement is idempotent so repeated
// starts and multiple processes racing on boot are safe.
const schema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS sources (
    id                    UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name                  TEXT NOT NULL UNIQUE,
    type                  TEXT NOT NULL DEFAULT 'rss',
    feed_url              TEXT,
    is_active             BOOLEAN NOT NULL DEFAULT TRUE,
    poll_interval_minutes INTEGER NOT NULL DEFAULT 60,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
    id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    source_id           UUID REFERENCES sources(id),
    external_id         TEXT,
    title               TEXT NOT NULL DEFAULT '',
    author              TEXT,
    published_at        TIMESTAMPTZ,
    original_url        TEXT,
    original_media_type TEXT,
    content_text        TEXT,
    content_html        TEXT,
    assets              JSONB NOT NULL DEFAULT '[]',
    transcript_status   TEXT NOT NULL DEFAULT 'none',
    ingest_status       TEXT NOT NULL DEFAULT 'pending',
    ingest_method       TEXT,
    is_archived         BOOLEAN NOT NULL DEFAULT FALSE,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (source_id, external_id)
);

CREATE TABLE IF NOT EXISTS segments (
    id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    document_id    UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    text           TEXT NOT NULL,
    content_html   TEXT,
    start_offset   INTEGER,
    end_offset     INTEGER,
    offset_kind    TEXT NOT NULL DEFAULT 'text',
    segment_status TEXT NOT NULL DEFAULT 'raw',
    version        INTEGER NOT NULL DEFAULT 1,
    labels         TEXT[] NOT NULL DEFAULT '{}',
    provenance     JSONB,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_segments_document ON segments (document_id);

CREATE TABLE IF NOT EXISTS hypotheses (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    hypothesis_text TEXT NOT NULL,
    description     TEXT,
    reference_url   TEXT,
    reference_type  TEXT NOT NULL DEFAULT 'none',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS hypothesis_versions (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    hypothesis_id   UUID NOT NULL REFERENCES hypotheses(id) ON DELETE CASCADE,
    hypothesis_text TEXT NOT NULL,
    description     TEXT,
    reference_url   TEXT,
    reference_type  TEXT NOT NULL DEFAULT 'none',
    recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    recorded_by     TEXT NOT NULL DEFAULT 'system'
);

CREATE INDEX IF NOT EXISTS idx_hypothesis_versions_hypothesis
    ON hypothesis_versions (hypothesis_id, recorded_at);

CREATE TABLE IF NOT EXISTS hypothesis_segment_links (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    hypothesis_id UUID NOT NULL REFERENCES hypotheses(id) ON DELETE CASCADE,
    segment_id    UUID NOT NULL REFERENCES segments(id) ON DELETE CASCADE,
    verdict       TEXT NOT NULL DEFAULT 'none',
    analysis_text TEXT,
    authored_by   TEXT NOT NULL DEFAULT 'human',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (hypothesis_id, segment_id)
);

CREATE INDEX IF NOT EXISTS idx_links_segment ON hypothesis_segment_links (segment_id);

CREATE TABLE IF NOT EXISTS hypothesis_segment_link_runs (
    id                             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    link_id                        UUID NOT NULL REFERENCES hypothesis_segment_links(id) ON DELETE CASCADE,
    hypothesis_id                  UUID NOT NULL,
    segment_id                     UUID NOT NULL,
    verdict                        TEXT NOT NULL DEFAULT 'none',
    analysis_text                  TEXT,
    authored_by                    TEXT NOT NULL DEFAULT 'human',
    hypothesis_text_snapshot       TEXT NOT NULL,
    description_snapshot           TEXT,
    reference_url_snapshot         TEXT,
    reference_type_snapshot        TEXT NOT NULL DEFAULT 'none',
    hypothesis_updated_at_snapshot TIMESTAMPTZ NOT NULL,
    created_at                     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_link ON hypothesis_segment_link_runs (link_id, created_at);

CREATE TABLE IF NOT EXISTS questions (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    question_text TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS question_hypotheses (
    question_id   UUID NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    hypothesis_id UUID NOT NULL REFERENCES hypotheses(id) ON DELETE CASCADE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (question_id, hypothesis_id)
);

CREATE TABLE IF NOT EXISTS hypothesis_reference_cache (
    hypothesis_id   UUID PRIMARY KEY REFERENCES hypotheses(id) ON DELETE CASCADE,
    full_text       TEXT NOT NULL,
    character_count INTEGER NOT NULL,
    fetched_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingestion_requests (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    source_id     UUID NOT NULL REFERENCES sources(id),
    status        TEXT NOT NULL DEFAULT 'queued',
    error_message TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_ingestion_requests_queued
    ON ingestion_requests (source_id) WHERE status = 'queued';

CREATE TABLE IF NOT EXISTS transcription_requests (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    document_id   UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    provider      TEXT NOT NULL,
    model         TEXT,
    start_seconds DOUBLE PRECISION,
    end_seconds   DOUBLE PRECISION,
    status        TEXT NOT NULL DEFAULT 'pending',
    result_text   TEXT,
    error_message TEXT,
    metadata      JSONB,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analyst_povs (
    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    segment_id UUID REFERENCES segments(id) ON DELETE CASCADE,
    status     TEXT NOT NULL DEFAULT 'draft',
    content    TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
