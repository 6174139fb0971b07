package models

import (
	"github.com/signalnoise/workbench/internal/apperr"
)

// ParseVerdict constrains the free-text verdict vocabulary. A nil or empty
// input is stored as VerdictNone.
func ParseVerdict(raw *string) (Verdict, error) {
	if raw == nil || *raw == "" {
		return VerdictNone, nil
	}
	switch Verdict(*raw) {
	case VerdictConfirms, VerdictRefutes, VerdictNuances, VerdictIrrelevant:
		return Verdict(*raw), nil
	case VerdictNone:
		return VerdictNone, nil
	}
	return "", apperr.Newf(apperr.Validation,
		"verdict must be one of confirms, refutes, nuances, irrelevant (got %q)", *raw)
}

// ParseReferenceType validates a reference type string, defaulting to RefNone.
func ParseReferenceType(raw *string) (ReferenceType, error) {
	if raw == nil || *raw == "" {
		return RefNone, nil
	}
	switch ReferenceType(*raw) {
	case RefPaper, RefArticle, RefBook, RefWebsite, RefNone:
		return ReferenceType(*raw), nil
	}
	return "", apperr.Newf(apperr.Validation,
		"reference_type must be one of paper, article, book, website, none (got %q)", *raw)
}

// ParseAuthoredBy validates the author tag, defaulting to human.
func ParseAuthoredBy(raw string) (AuthoredBy, error) {
	switch AuthoredBy(raw) {
	case "":
		return AuthoredByHuman, nil
	case AuthoredByHuman, AuthoredByAgent:
		return AuthoredBy(raw), nil
	}
	return "", apperr.Newf(apperr.Validation, "authored_by must be human or agent (got %q)", raw)
}

// ParseTranscriptionProvider validates the provider selector.
func ParseTranscriptionProvider(raw string) (TranscriptionProvider, error) {
	switch TranscriptionProvider(raw) {
	case ProviderOpenAI, ProviderAssembly:
		return TranscriptionProvider(raw), nil
	}
	return "", apperr.Newf(apperr.Validation, "provider must be openai or assembly (got %q)", raw)
}

// ValidateOffsets checks a segment's offsets against its document text.
// Both offsets must be present together, and for text offsets they must
// satisfy 0 <= start < end <= len(contentText).
func ValidateOffsets(start, end *int, kind OffsetKind, contentText string) error {
	if start == nil && end == nil {
		return nil
	}
	if start == nil || end == nil {
		return apperr.New(apperr.Validation, "start_offset and end_offset must both be set")
	}
	if *start < 0 {
		return apperr.New(apperr.Validation, "start_offset must be >= 0")
	}
	if *start >= *end {
		return apperr.New(apperr.Validation, "start_offset must be less than end_offset")
	}
	if kind == OffsetText && *end > len(contentText) {
		return apperr.Newf(apperr.Validation,
			"end_offset %d exceeds document content length %d", *end, len(contentText))
	}
	return nil
}
