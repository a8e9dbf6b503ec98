package corroborate

import (
	"sync"

	"github.com/agentstation/corroborate/pkg/audit"
	"github.com/agentstation/corroborate/pkg/records"
)

// Hook function types for resolution events
type (
	// FieldResolvedHook is called once per field, in field-name order
	FieldResolvedHook func(decision records.ResolutionDecision)

	// RecordHook is called with each finished record
	RecordHook func(record *records.ResolvedRecord)

	// AuditHook is called with one request's audit entries, in field-name order
	AuditHook func(entries []audit.Entry)
)

// hooks manages event callbacks
type hooks struct {
	mu              sync.RWMutex
	onFieldResolved []FieldResolvedHook
	onRecord        []RecordHook
	onAudit         []AuditHook
}

func newHooks() *hooks {
	return &hooks{}
}

// OnFieldResolved registers a callback for every field decision
func (h *hooks) OnFieldResolved(fn FieldResolvedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onFieldResolved = append(h.onFieldResolved, fn)
}

// OnRecord registers a callback for every finished record
func (h *hooks) OnRecord(fn RecordHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRecord = append(h.onRecord, fn)
}

// OnAudit registers a callback for every request's audit entries
func (h *hooks) OnAudit(fn AuditHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAudit = append(h.onAudit, fn)
}

// trigger fires the field hooks in sorted field order, then the record and
// audit hooks.
func (h *hooks) trigger(rec *records.ResolvedRecord, entries []audit.Entry) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, name := range rec.FieldNames() {
		d := rec.Fields[name]
		for _, hook := range h.onFieldResolved {
			hook(d)
		}
	}
	for _, hook := range h.onRecord {
		hook(rec)
	}
	for _, hook := range h.onAudit {
		hook(append([]audit.Entry(nil), entries...))
	}
}
