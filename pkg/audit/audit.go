// Package audit keeps a per-field trail of how each resolved value was chosen.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/records"
)

// Entry is the audit record for one field of one resolved record.
type Entry struct {
	RecordID          string                     `json:"record_id" yaml:"record_id"`
	Subject           string                     `json:"subject" yaml:"subject"`
	Field             records.FieldName          `json:"field_name" yaml:"field_name"`
	Classification    records.ClassificationKind `json:"classification" yaml:"classification"`
	Winner            records.Value              `json:"winner,omitempty" yaml:"winner,omitempty"`
	Confidence        float64                    `json:"confidence" yaml:"confidence"`
	WinnerSources     []records.SourceID         `json:"winner_sources,omitempty" yaml:"winner_sources,omitempty"`
	RulesApplied      []records.RuleName         `json:"rules_applied" yaml:"rules_applied"`
	SignalsConsidered int                        `json:"signals_considered" yaml:"signals_considered"`
	Candidates        int                        `json:"candidates" yaml:"candidates"`
	Failures          []string                   `json:"failures,omitempty" yaml:"failures,omitempty"`
	Timestamp         time.Time                  `json:"timestamp" yaml:"timestamp"`
}

// NewEntry builds an entry from a decision. failures are the agent and
// quorum errors seen while deciding.
func NewEntry(recordID string, subject records.Subject, d records.ResolutionDecision, candidates int, failures []error) Entry {
	e := Entry{
		RecordID:          recordID,
		Subject:           subject.Key(),
		Field:             d.Field,
		Classification:    d.Classification,
		Winner:            d.WinnerValue,
		Confidence:        d.WinnerConfidence,
		WinnerSources:     d.WinnerSources,
		RulesApplied:      d.RulesApplied,
		SignalsConsidered: d.SignalsConsidered,
		Candidates:        candidates,
	}
	for _, err := range failures {
		if err != nil {
			e.Failures = append(e.Failures, err.Error())
		}
	}
	return e
}

// Log emits the entry as one structured info line.
func (e Entry) Log(ctx context.Context) {
	logging.FromContext(ctx).Info().
		Str("record_id", e.RecordID).
		Str("field_name", string(e.Field)).
		Str("classification", e.Classification.String()).
		Strs("rules_applied", ruleStrings(e.RulesApplied)).
		Int("signals_considered", e.SignalsConsidered).
		Float64("confidence", e.Confidence).
		Int("failures", len(e.Failures)).
		Msg("Field resolved")
}

func ruleStrings(rules []records.RuleName) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = string(r)
	}
	return out
}

// Trail maps subject key to field to that field's entries, oldest first.
type Trail map[string]map[records.FieldName][]Entry

// NewTrail groups entries by subject and field, keeping their order.
func NewTrail(entries ...Entry) Trail {
	trail := make(Trail)
	for _, e := range entries {
		fields, ok := trail[e.Subject]
		if !ok {
			fields = make(map[records.FieldName][]Entry)
			trail[e.Subject] = fields
		}
		fields[e.Field] = append(fields[e.Field], e)
	}
	return trail
}

// Tracker collects audit entries across requests. Engines only share one
// when it is installed explicitly.
type Tracker interface {
	// Track records an entry
	Track(e Entry)

	// FindByField returns the entries for one field of a subject
	FindByField(subjectKey string, field records.FieldName) []Entry

	// FindBySubject returns every field's entries for a subject
	FindBySubject(subjectKey string) map[records.FieldName][]Entry

	// Trail returns a copy of everything tracked
	Trail() Trail

	// Clear removes all entries
	Clear()
}

type tracker struct {
	mu    sync.RWMutex
	trail Trail
	limit int
	now   func() time.Time
}

// NewTracker creates a tracker that keeps the newest limit entries per
// subject field. A limit below one drops every entry.
func NewTracker(limit int) Tracker {
	return &tracker{trail: make(Trail), limit: limit, now: time.Now}
}

func (t *tracker) Track(e Entry) {
	if t.limit < 1 {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fields, ok := t.trail[e.Subject]
	if !ok {
		fields = make(map[records.FieldName][]Entry)
		t.trail[e.Subject] = fields
	}
	entries := append(fields[e.Field], e)
	if over := len(entries) - t.limit; over > 0 {
		entries = append([]Entry(nil), entries[over:]...)
	}
	fields[e.Field] = entries
}

func (t *tracker) FindByField(subjectKey string, field records.FieldName) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.trail[subjectKey][field]...)
}

func (t *tracker) FindBySubject(subjectKey string) map[records.FieldName][]Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fields, ok := t.trail[subjectKey]
	if !ok {
		return nil
	}
	out := make(map[records.FieldName][]Entry, len(fields))
	for f, es := range fields {
		out[f] = append([]Entry(nil), es...)
	}
	return out
}

func (t *tracker) Trail() Trail {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(Trail, len(t.trail))
	for s, fields := range t.trail {
		cp := make(map[records.FieldName][]Entry, len(fields))
		for f, es := range fields {
			cp[f] = append([]Entry(nil), es...)
		}
		out[s] = cp
	}
	return out
}

func (t *tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trail = make(Trail)
}

// Report is the serialisable form of a trail.
type Report struct {
	GeneratedAt time.Time        `yaml:"generated_at"`
	Subjects    []SubjectSection `yaml:"subjects"`
	Summary     Summary          `yaml:"summary"`
}

// SubjectSection holds one subject's fields in name order.
type SubjectSection struct {
	Subject string         `yaml:"subject"`
	Fields  []FieldSection `yaml:"fields"`
}

// FieldSection holds a field's latest entry and its earlier history.
type FieldSection struct {
	Field   records.FieldName `yaml:"field"`
	Current Entry             `yaml:"current"`
	History []Entry           `yaml:"history,omitempty"`
}

// Summary counts decisions by how they were reached.
type Summary struct {
	Fields            int `yaml:"fields"`
	Unanimous         int `yaml:"unanimous"`
	Conflicting       int `yaml:"conflicting"`
	Unresolved        int `yaml:"unresolved"`
	Absent            int `yaml:"absent"`
	AgentFailures     int `yaml:"agent_failures"`
	UnmatchedDiscards int `yaml:"unmatched_discards"`
}

// GenerateReport builds a report from a trail, sorted by subject then field.
// Summary counts only each field's latest entry.
func GenerateReport(trail Trail) *Report {
	r := &Report{GeneratedAt: time.Now().UTC()}

	subjects := make([]string, 0, len(trail))
	for s := range trail {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	for _, s := range subjects {
		section := SubjectSection{Subject: s}
		fields := make([]records.FieldName, 0, len(trail[s]))
		for f := range trail[s] {
			fields = append(fields, f)
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

		for _, f := range fields {
			entries := append([]Entry(nil), trail[s][f]...)
			// Newest first
			sort.SliceStable(entries, func(i, j int) bool {
				return entries[i].Timestamp.After(entries[j].Timestamp)
			})
			if len(entries) == 0 {
				continue
			}
			fs := FieldSection{Field: f, Current: entries[0]}
			if len(entries) > 1 {
				fs.History = entries[1:]
			}
			section.Fields = append(section.Fields, fs)
			r.Summary.add(fs.Current)
		}
		r.Subjects = append(r.Subjects, section)
	}
	return r
}

func (s *Summary) add(e Entry) {
	s.Fields++
	switch e.Classification {
	case records.Unanimous:
		s.Unanimous++
	case records.Conflicting:
		s.Conflicting++
	case records.ConflictingUnresolved:
		s.Unresolved++
	case records.Absent:
		s.Absent++
	}
	s.AgentFailures += len(e.Failures)
	for _, rule := range e.RulesApplied {
		if rule == records.RuleUnmatchedSignalDropped {
			s.UnmatchedDiscards++
		}
	}
}

// String renders the report for a terminal.
func (r *Report) String() string {
	var sb strings.Builder

	sb.WriteString("Audit Report\n")
	sb.WriteString("============\n\n")

	for _, subject := range r.Subjects {
		sb.WriteString(subject.Subject + "\n")
		sb.WriteString(strings.Repeat("-", 40))
		sb.WriteString("\n")

		for _, f := range subject.Fields {
			c := f.Current
			fmt.Fprintf(&sb, "  %s: %v (%s, confidence %.2f)\n", f.Field, c.Winner, c.Classification, c.Confidence)
			fmt.Fprintf(&sb, "    Rules: %s\n", strings.Join(ruleStrings(c.RulesApplied), ", "))
			if len(c.WinnerSources) > 0 {
				fmt.Fprintf(&sb, "    Sources: %v\n", c.WinnerSources)
			}
			for _, failure := range c.Failures {
				fmt.Fprintf(&sb, "    Failure: %s\n", failure)
			}
			if len(f.History) > 0 {
				fmt.Fprintf(&sb, "    Earlier decisions: %d\n", len(f.History))
			}
		}
		sb.WriteString("\n")
	}

	s := r.Summary
	fmt.Fprintf(&sb, "%d fields: %d unanimous, %d conflicting, %d unresolved, %d absent\n",
		s.Fields, s.Unanimous, s.Conflicting, s.Unresolved, s.Absent)
	return sb.String()
}

// WriteYAML writes the report to path, creating parent directories.
func (r *Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return errors.WrapIO("marshal", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
			return errors.WrapIO("mkdir", dir, err)
		}
	}
	if err := os.WriteFile(path, data, constants.FilePermissions); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}

// Load reads a report written by WriteYAML.
// Returns nil, nil if the file doesn't exist.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from CLI flags
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse audit report: %w", err)
	}
	return &r, nil
}
