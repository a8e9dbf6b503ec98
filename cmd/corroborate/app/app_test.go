package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/corroborate"
	"github.com/agentstation/corroborate/internal/config"
	"github.com/agentstation/corroborate/pkg/audit"
	pkgerrors "github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/records"
	"github.com/agentstation/corroborate/pkg/sources"
)

func writeFixture(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testSettings(t *testing.T) *config.File {
	t.Helper()
	dir := t.TempDir()
	cfg := corroborate.DefaultConfig()
	cfg.Retry.Base = 0
	return &config.File{
		Engine: cfg,
		Providers: []sources.ProviderConfig{
			{ID: "alpha", Kind: "fixture", Tier: 1, Path: writeFixture(t, dir, "alpha.yaml",
				"subjects:\n  acme.com:\n    fields:\n      legal_name: Acme\n      employee_count: 500\n")},
			{ID: "bravo", Kind: "fixture", Tier: 1, Path: writeFixture(t, dir, "bravo.yaml",
				"subjects:\n  acme.com:\n    fields:\n      legal_name: ACME\n      employee_count: 510\n")},
			{ID: "charlie", Kind: "fixture", Tier: 3, Path: writeFixture(t, dir, "charlie.yaml",
				"subjects:\n  acme.com:\n    fields:\n      legal_name: acme\n      employee_count: 9000\n")},
			{ID: "off", Kind: "fixture", Tier: 2, Disabled: true},
		},
		Logging: logging.Config{Level: "error", Output: "discard"},
		Storage: config.Storage{Format: "yaml"},
	}
}

func newTestApp(t *testing.T, settings *config.File) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a, err := New("1.2.3", "abc123", "2026-01-01", "test",
		WithSettings(settings),
		WithLogger(logging.NewNopLogger()),
		WithOutput(&out),
	)
	require.NoError(t, err)
	return a, &out
}

func TestNew(t *testing.T) {
	a, _ := newTestApp(t, testSettings(t))
	assert.Equal(t, "1.2.3", a.Version())
	assert.NotNil(t, a.Logger())

	settings, err := a.Settings()
	require.NoError(t, err)
	assert.Len(t, settings.Providers, 4)
}

func TestVersionCommand(t *testing.T) {
	a, out := newTestApp(t, testSettings(t))
	require.NoError(t, a.Execute(context.Background(), []string{"version"}))
	assert.Equal(t, "corroborate 1.2.3\n", out.String())

	out.Reset()
	require.NoError(t, a.Execute(context.Background(), []string{"version", "-o", "json"}))
	var info VersionInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, VersionInfo{Version: "1.2.3", Commit: "abc123", Date: "2026-01-01", BuiltBy: "test"}, info)
}

func TestResolveCommand(t *testing.T) {
	settings := testSettings(t)
	saveDir := t.TempDir()
	auditFile := filepath.Join(t.TempDir(), "audit.yaml")
	a, out := newTestApp(t, settings)

	err := a.Execute(context.Background(), []string{
		"resolve", "--name", "Acme", "--domain", "acme.com",
		"-o", "json", "--save-dir", saveDir, "--audit-file", auditFile,
	})
	require.NoError(t, err)

	var rec records.ResolvedRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.NotEmpty(t, rec.ID)
	assert.Len(t, rec.Sources, 3)

	name := rec.Fields["legal_name"]
	assert.Equal(t, records.Unanimous, name.Classification)
	assert.InDelta(t, 1.0, name.WinnerConfidence, 1e-9)

	count := rec.Fields["employee_count"]
	assert.Equal(t, records.Conflicting, count.Classification)
	assert.ElementsMatch(t, []records.SourceID{"alpha", "bravo"}, count.WinnerSources)
	require.Len(t, count.Alternatives, 1)
	assert.Equal(t, []records.SourceID{"charlie"}, count.Alternatives[0].SourceIDs)

	assert.Equal(t, records.Absent, rec.Fields["industry"].Classification)

	saved, err := filepath.Glob(filepath.Join(saveDir, "acme.com", "*.yaml"))
	require.NoError(t, err)
	assert.Len(t, saved, 1)

	report, err := audit.Load(auditFile)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Summary.Conflicting)
}

func TestResolveCommandTable(t *testing.T) {
	a, out := newTestApp(t, testSettings(t))
	require.NoError(t, a.Execute(context.Background(), []string{"resolve", "--domain", "acme.com", "-o", "wide", "--providers", "alpha,bravo"}))
	assert.Contains(t, out.String(), "Overall confidence")
	assert.NotContains(t, out.String(), "charlie")
}

func TestResolveCommandErrors(t *testing.T) {
	a, _ := newTestApp(t, testSettings(t))

	err := a.Execute(context.Background(), []string{"resolve"})
	assert.True(t, pkgerrors.IsValidationError(err))

	err = a.Execute(context.Background(), []string{"resolve", "--domain", "acme.com", "--providers", "zulu,alpha"})
	assert.True(t, pkgerrors.IsNotFound(err))

	err = a.Execute(context.Background(), []string{"resolve", "--domain", "acme.com", "-o", "csv"})
	assert.Error(t, err)

	empty := testSettings(t)
	empty.Providers = nil
	b, _ := newTestApp(t, empty)
	err = b.Execute(context.Background(), []string{"resolve", "--domain", "acme.com"})
	assert.True(t, pkgerrors.IsConfigError(err))
}

func TestProvidersCommand(t *testing.T) {
	a, out := newTestApp(t, testSettings(t))
	require.NoError(t, a.Execute(context.Background(), []string{"providers", "-o", "table"}))
	assert.Contains(t, out.String(), "charlie")
	assert.Contains(t, out.String(), "Kinds: fixture, httpjson")
}

func TestConfigCommandRedacts(t *testing.T) {
	settings := testSettings(t)
	settings.Storage.Postgres.DSN = "postgres://user:secret@db/corroborate"
	a, out := newTestApp(t, settings)

	require.NoError(t, a.Execute(context.Background(), []string{"config"}))
	assert.Contains(t, out.String(), "<redacted>")
	assert.NotContains(t, out.String(), "secret")
	assert.Contains(t, out.String(), "quorum: 3")
	// the caller's settings are untouched
	assert.Equal(t, "postgres://user:secret@db/corroborate", settings.Storage.Postgres.DSN)
}

func TestResolveExampleConfig(t *testing.T) {
	settings, err := config.Load(filepath.Join("..", "..", "..", "examples", "corroborate.yaml"))
	require.NoError(t, err)
	settings.Logging.Output = "discard"
	a, out := newTestApp(t, settings)

	require.NoError(t, a.Execute(context.Background(), []string{"resolve", "--name", "Acme Corp", "--domain", "acme.com", "-o", "json"}))

	var rec records.ResolvedRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	require.Len(t, rec.Sources, 5)
	for _, s := range rec.Sources {
		assert.True(t, s.OK, "source %s: %s", s.SourceID, s.Error)
		if s.SourceID == "flaky" {
			assert.Equal(t, 3, s.Attempts)
		}
	}

	ceo := rec.Fields["ceo"]
	assert.Equal(t, records.Conflicting, ceo.Classification)
	assert.ElementsMatch(t, []records.SourceID{"filings", "registry"}, ceo.WinnerSources)
	assert.Equal(t, records.Unanimous, rec.Fields["domain"].Classification)
	assert.Greater(t, rec.OverallConfidence, 0.0)
}
