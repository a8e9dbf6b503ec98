package files

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/records"
	"github.com/agentstation/corroborate/pkg/save"
)

func record(id string) *records.ResolvedRecord {
	return &records.ResolvedRecord{
		ID:      id,
		Subject: records.Subject{Name: "Acme Corp", Domain: "https://www.acme.com/"},
		Fields: map[records.FieldName]records.ResolutionDecision{
			"revenue": {
				Field:             "revenue",
				Classification:    records.Conflicting,
				WinnerValue:       "500",
				WinnerConfidence:  0.87,
				WinnerSources:     []records.SourceID{"alpha", "bravo"},
				Alternatives:      []records.Alternative{{Value: "9000", Score: 0.41, SourceIDs: []records.SourceID{"charlie"}}},
				RulesApplied:      []records.RuleName{records.RuleWeightedScore},
				SignalsConsidered: 12,
			},
		},
		OverallConfidence: 0.87,
		GeneratedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNewValidates(t *testing.T) {
	_, err := New("", save.FormatYAML)
	assert.True(t, pkgerrors.IsConfigError(err))

	_, err = New(t.TempDir(), save.Format(9))
	assert.True(t, pkgerrors.IsValidationError(err))
}

func TestSaveAndLoad(t *testing.T) {
	for _, format := range []save.Format{save.FormatYAML, save.FormatJSON} {
		t.Run(format.String(), func(t *testing.T) {
			dir := t.TempDir()
			sink, err := New(dir, format)
			require.NoError(t, err)

			rec := record("1001")
			require.NoError(t, sink.Save(context.Background(), rec))
			assert.Equal(t, filepath.Join(dir, "acme.com", "1001."+format.Ext()), sink.Path(rec))

			got, err := Load(sink.Path(rec))
			require.NoError(t, err)
			assert.Equal(t, rec.ID, got.ID)
			assert.Equal(t, rec.Subject, got.Subject)
			assert.Equal(t, "500", got.Value("revenue"))
			assert.Equal(t, records.Conflicting, got.Fields["revenue"].Classification)
			assert.True(t, rec.GeneratedAt.Equal(got.GeneratedAt))
		})
	}
}

func TestLatest(t *testing.T) {
	sink, err := New(t.TempDir(), save.FormatYAML)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = sink.Latest(record("x").Subject)
	assert.True(t, pkgerrors.IsNotFound(err))

	for _, id := range []string{"999", "1000", "1001"} {
		require.NoError(t, sink.Save(ctx, record(id)))
	}
	paths, err := sink.List(record("x").Subject)
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	got, err := sink.Latest(record("x").Subject)
	require.NoError(t, err)
	assert.Equal(t, "1001", got.ID)
}

func TestSaveRejectsBadRecords(t *testing.T) {
	sink, err := New(t.TempDir(), save.FormatJSON)
	require.NoError(t, err)

	assert.True(t, pkgerrors.IsValidationError(sink.Save(context.Background(), nil)))
	assert.True(t, pkgerrors.IsValidationError(sink.Save(context.Background(), record(""))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Save(ctx, record("1")), context.Canceled)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "acme.com_eu", safeName("acme.com/eu"))
	assert.Equal(t, "_", safeName(".."))
	assert.Equal(t, "_", safeName(""))
}
