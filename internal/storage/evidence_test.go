package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/models"
)

// Item vocabulary is checked before the transaction opens, so these run
// against a zero-value store.
func TestCommitEvidenceRejectsInvalidVocabulary(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	_, err := s.CommitEvidence(ctx, "seg-1", nil)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = s.CommitEvidence(ctx, "seg-1", []models.EvidenceItem{
		{HypothesisText: "H1", AuthoredBy: models.AuthoredBy("robot")},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Contains(t, apperr.Detail(err), "authored_by")

	verdict := "maybe"
	_, err = s.CommitEvidence(ctx, "seg-1", []models.EvidenceItem{
		{HypothesisText: "H1", Verdict: &verdict},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Contains(t, apperr.Detail(err), "verdict")
}

func TestCommitEvidenceRejectsOneBadItemInBatch(t *testing.T) {
	s := &Store{}
	good := "confirms"

	_, err := s.CommitEvidence(context.Background(), "seg-1", []models.EvidenceItem{
		{HypothesisText: "H1", Verdict: &good},
		{HypothesisText: "H2", AuthoredBy: models.AuthoredBy("llm")},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}
