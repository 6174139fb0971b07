package adapters

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/signalnoise/workbench/internal/models"
)

// FeedIngestor implements Ingestor for rss and podcast sources.
type FeedIngestor struct {
	parser *gofeed.Parser
	logger zerolog.Logger
}

// NewFeedIngestor creates the feed-backed ingestor.
func NewFeedIngestor(logger zerolog.Logger) *FeedIngestor {
	return &FeedIngestor{
		parser: gofeed.NewParser(),
		logger: logger.With().Str("component", "feed_ingestor").Logger(),
	}
}

// Ingest parses the source's feed and yields one record per entry. Articles
// carry the entry's HTML body (plus a plain-text rendering); podcasts carry
// an audio asset pointing at the enclosure.
func (f *FeedIngestor) Ingest(ctx context.Context, source models.Source) ([]DocumentRecord, error) {
	if source.FeedURL == nil || *source.FeedURL == "" {
		return nil, BadRequest("ingest feed", fmt.Errorf("source %s has no feed_url", source.Name))
	}

	feed, err := f.parser.ParseURLWithContext(*source.FeedURL, ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Timeout("ingest feed", err)
		}
		return nil, Transient("ingest feed", err)
	}

	records := make([]DocumentRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		externalID := item.GUID
		if externalID == "" {
			externalID = item.Link
		}
		if externalID == "" {
			f.logger.Warn().Str("source", source.Name).Str("title", item.Title).Msg("Skipping feed item without guid or link")
			continue
		}

		rec := DocumentRecord{
			ExternalID:  externalID,
			Title:       item.Title,
			PublishedAt: item.PublishedParsed,
		}
		if item.Link != "" {
			link := item.Link
			rec.OriginalURL = &link
		}
		if len(item.Authors) > 0 && item.Authors[0].Name != "" {
			author := item.Authors[0].Name
			rec.Author = &author
		}

		switch source.Type {
		case models.SourcePodcast:
			asset, ok := audioAsset(item)
			if !ok {
				f.logger.Warn().Str("source", source.Name).Str("title", item.Title).Msg("Skipping podcast item without audio enclosure")
				continue
			}
			mediaType := "audio"
			rec.OriginalMediaType = &mediaType
			rec.Assets = []models.Asset{asset}
		default:
			html := item.Content
			if html == "" {
				html = item.Description
			}
			if html != "" {
				rec.ContentHTML = &html
				text := htmlToText(html)
				rec.ContentText = &text
			}
			mediaType := "article"
			rec.OriginalMediaType = &mediaType
		}

		records = append(records, rec)
	}

	f.logger.Info().Str("source", source.Name).Int("items", len(records)).Msg("Feed parsed")
	return records, nil
}

// audioAsset extracts the first audio enclosure from a feed item.
func audioAsset(item *gofeed.Item) (models.Asset, bool) {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if enc.Type != "" && !strings.HasPrefix(enc.Type, "audio/") {
			continue
		}
		asset := models.Asset{Type: "audio", URL: enc.URL}
		if item.ITunesExt != nil && item.ITunesExt.Duration != "" {
			if dur, ok := parseITunesDuration(item.ITunesExt.Duration); ok {
				asset.Duration = &dur
			}
		}
		return asset, true
	}
	return models.Asset{}, false
}

// parseITunesDuration handles both raw seconds and HH:MM:SS forms.
func parseITunesDuration(raw string) (float64, bool) {
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return secs, true
	}
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	total := 0.0
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0, false
		}
		total = total*60 + v
	}
	return total, true
}

// htmlToText renders a feed entry's HTML body to plain text for offsets and
// analysis.
func htmlToText(raw string) string {
	text, err := extractHTMLText([]byte(raw))
	if err != nil {
		return raw
	}
	return text
}
