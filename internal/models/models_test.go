package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnoise/workbench/internal/apperr"
)

func strptr(s string) *string { return &s }
func intptr(i int) *int       { return &i }

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		raw     *string
		want    Verdict
		wantErr bool
	}{
		{"nil means none", nil, VerdictNone, false},
		{"empty means none", strptr(""), VerdictNone, false},
		{"confirms", strptr("confirms"), VerdictConfirms, false},
		{"refutes", strptr("refutes"), VerdictRefutes, false},
		{"nuances", strptr("nuances"), VerdictNuances, false},
		{"irrelevant", strptr("irrelevant"), VerdictIrrelevant, false},
		{"unknown rejected", strptr("maybe"), "", true},
		{"case sensitive", strptr("Confirms"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVerdict(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.Validation, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseReferenceType(t *testing.T) {
	got, err := ParseReferenceType(nil)
	require.NoError(t, err)
	assert.Equal(t, RefNone, got)

	got, err = ParseReferenceType(strptr("paper"))
	require.NoError(t, err)
	assert.Equal(t, RefPaper, got)

	_, err = ParseReferenceType(strptr("magazine"))
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestParseAuthoredBy(t *testing.T) {
	got, err := ParseAuthoredBy("")
	require.NoError(t, err)
	assert.Equal(t, AuthoredByHuman, got)

	got, err = ParseAuthoredBy("agent")
	require.NoError(t, err)
	assert.Equal(t, AuthoredByAgent, got)

	_, err = ParseAuthoredBy("robot")
	require.Error(t, err)
}

func TestValidateOffsets(t *testing.T) {
	const content = "ABCDEFGHIJ" // len 10

	tests := []struct {
		name    string
		start   *int
		end     *int
		kind    OffsetKind
		wantErr bool
	}{
		{"both nil is fine", nil, nil, OffsetText, false},
		{"valid window", intptr(3), intptr(6), OffsetText, false},
		{"full span", intptr(0), intptr(10), OffsetText, false},
		{"only start set", intptr(3), nil, OffsetText, true},
		{"only end set", nil, intptr(6), OffsetText, true},
		{"negative start", intptr(-1), intptr(6), OffsetText, true},
		{"start equals end", intptr(4), intptr(4), OffsetText, true},
		{"start after end", intptr(7), intptr(3), OffsetText, true},
		{"end past content", intptr(3), intptr(11), OffsetText, true},
		{"seconds kind ignores content length", intptr(30), intptr(3600), OffsetSeconds, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOffsets(tt.start, tt.end, tt.kind, content)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.Validation, apperr.KindOf(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFreshness(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Link saved after the hypothesis edit is current.
	assert.Equal(t, FreshnessCurrent, Freshness(base.Add(time.Minute), base))
	// Equal timestamps count as current.
	assert.Equal(t, FreshnessCurrent, Freshness(base, base))
	// Hypothesis edited after the link was saved makes it stale.
	assert.Equal(t, FreshnessStale, Freshness(base, base.Add(time.Second)))
}
