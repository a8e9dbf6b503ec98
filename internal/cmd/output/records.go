package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/agentstation/corroborate/pkg/breaker"
	"github.com/agentstation/corroborate/pkg/records"
	"github.com/agentstation/corroborate/pkg/sources"
)

// RecordTable renders one row per field. Wide adds alternatives and rules.
func RecordTable(rec *records.ResolvedRecord, wide bool) Data {
	headers := []string{"Field", "Classification", "Value", "Confidence", "Sources"}
	align := []Align{AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignLeft}
	if wide {
		headers = append(headers, "Signals", "Alternatives", "Rules")
		align = append(align, AlignRight, AlignLeft, AlignLeft)
	}

	rows := make([][]string, 0, len(rec.Fields))
	for _, name := range rec.FieldNames() {
		d := rec.Fields[name]
		row := []string{
			string(name),
			d.Classification.String(),
			formatValue(d.WinnerValue),
			fmt.Sprintf("%.2f", d.WinnerConfidence),
			joinSources(d.WinnerSources),
		}
		if wide {
			alts := make([]string, 0, len(d.Alternatives))
			for _, a := range d.Alternatives {
				alts = append(alts, fmt.Sprintf("%s (%.2f)", formatValue(a.Value), a.Score))
			}
			rules := make([]string, 0, len(d.RulesApplied))
			for _, r := range d.RulesApplied {
				rules = append(rules, string(r))
			}
			row = append(row,
				fmt.Sprintf("%d", d.SignalsConsidered),
				strings.Join(alts, ", "),
				strings.Join(rules, ", "),
			)
		}
		rows = append(rows, row)
	}
	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// SourcesTable renders the per-provider fetch outcomes.
func SourcesTable(rec *records.ResolvedRecord) Data {
	rows := make([][]string, 0, len(rec.Sources))
	for _, s := range rec.Sources {
		status := "ok"
		if !s.OK {
			status = s.Error
		}
		rows = append(rows, []string{
			string(s.SourceID),
			fmt.Sprintf("%d", s.Tier),
			fmt.Sprintf("%d", s.FieldCount),
			fmt.Sprintf("%d", s.Attempts),
			s.Duration.Round(time.Millisecond).String(),
			status,
		})
	}
	return Data{
		Headers:         []string{"Source", "Tier", "Fields", "Attempts", "Duration", "Status"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignRight, AlignRight, AlignRight, AlignRight, AlignLeft},
	}
}

// ProvidersTable renders configured providers.
func ProvidersTable(cfgs []sources.ProviderConfig) Data {
	rows := make([][]string, 0, len(cfgs))
	for _, c := range cfgs {
		target := c.URL
		if target == "" {
			target = c.Path
		}
		timeout := "default"
		if c.Timeout > 0 {
			timeout = c.Timeout.String()
		}
		enabled := "yes"
		if c.Disabled {
			enabled = "no"
		}
		rows = append(rows, []string{c.ID, c.Kind, fmt.Sprintf("%d", c.Tier), timeout, enabled, target})
	}
	return Data{
		Headers: []string{"ID", "Kind", "Tier", "Timeout", "Enabled", "Target"},
		Rows:    rows,
	}
}

// BreakersTable renders circuit breaker snapshots.
func BreakersTable(statuses []breaker.Status) Data {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, []string{s.Name, s.State.String(), fmt.Sprintf("%d", s.Failures)})
	}
	return Data{
		Headers: []string{"Provider", "State", "Failures"},
		Rows:    rows,
	}
}

// WriteRecord writes a record in the given format. Table output prints the
// field table, then the sources table and the overall confidence.
func WriteRecord(w io.Writer, rec *records.ResolvedRecord, format Format) error {
	switch format {
	case FormatJSON, FormatYAML:
		return NewFormatter(format).Format(w, rec)
	}

	f := &TableFormatter{Wide: format == FormatWide}
	fmt.Fprintf(w, "%s  [record %s]\n", rec.Subject, rec.ID)
	if err := f.Format(w, RecordTable(rec, f.Wide)); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if err := f.Format(w, SourcesTable(rec)); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nOverall confidence: %.2f\n", rec.OverallConfidence)
	return err
}

func formatValue(v records.Value) string {
	if v == nil {
		return "-"
	}
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%g", f)
	}
	return fmt.Sprintf("%v", v)
}

func joinSources(ids []records.SourceID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
