package corroborate

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentstation/corroborate/internal/ids"
	"github.com/agentstation/corroborate/pkg/audit"
	"github.com/agentstation/corroborate/pkg/classifier"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/panel"
	"github.com/agentstation/corroborate/pkg/records"
	"github.com/agentstation/corroborate/pkg/revolver"
	"github.com/agentstation/corroborate/pkg/sources"
)

// fieldWork carries one field through the panel and the revolver.
type fieldWork struct {
	classified classifier.Classified
	item       revolver.Item
	failures   []error
}

// Resolve runs gather, classify, evaluate, and aggregate for one subject.
// It returns an error only when the request is invalid; provider and agent
// failures degrade the record instead.
func (e *Engine) Resolve(ctx context.Context, req sources.GatherRequest) (*records.ResolvedRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	recordID := ids.New()
	ctx = logging.WithRequestID(ctx, recordID)
	ctx = logging.WithSubject(ctx, req.Subject.Key())
	logger := logging.FromContext(ctx)

	ctx, span := e.tracer.Start(ctx, "corroborate.resolve", trace.WithAttributes(
		attribute.String("subject", req.Subject.Key()),
		attribute.Int("provider_count", len(req.Providers)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestDeadline)
	defer cancel()

	startedAt := e.now()
	logger.Info().Int("provider_count", len(req.Providers)).Msg("Resolving subject")

	gctx, gspan := e.tracer.Start(ctx, "corroborate.gather")
	results, err := e.gatherer.Gather(gctx, req)
	gspan.End()
	if err != nil {
		return nil, err
	}

	_, cspan := e.tracer.Start(ctx, "corroborate.classify")
	classified := e.classifier.ClassifyAll(ctx, results)
	cspan.End()

	work := e.evaluate(ctx, req.Subject, classified, startedAt)

	actx, aspan := e.tracer.Start(ctx, "corroborate.aggregate")
	items := make([]revolver.Item, len(work))
	for i, w := range work {
		items[i] = w.item
	}
	decisions := e.revolver.ResolveAll(actx, items)
	aspan.End()

	rec := &records.ResolvedRecord{
		ID:                recordID,
		Subject:           req.Subject,
		Fields:            decisions,
		OverallConfidence: records.OverallConfidence(decisions),
		GeneratedAt:       e.now(),
		Sources:           make([]records.SourceReport, 0, len(results)),
	}
	for _, r := range results {
		rec.Sources = append(rec.Sources, r.Report())
	}

	entries := make([]audit.Entry, 0, len(work))
	for _, w := range work {
		field := w.classified.Classification.Field
		entry := audit.NewEntry(recordID, req.Subject, decisions[field], len(w.classified.Observation.Candidates), w.failures)
		entry.Timestamp = rec.GeneratedAt
		entry.Log(ctx)
		if e.tracker != nil {
			e.tracker.Track(entry)
		}
		entries = append(entries, entry)
	}

	span.SetAttributes(attribute.Float64("overall_confidence", rec.OverallConfidence))
	logger.Info().
		Str("record_id", rec.ID).
		Float64("overall_confidence", rec.OverallConfidence).
		Dur("elapsed", rec.GeneratedAt.Sub(startedAt)).
		Msg("Subject resolved")

	e.hooks.trigger(rec, entries)
	e.save(ctx, rec)
	return rec, nil
}

// evaluate consults the panel for every conflicting field concurrently.
// Fields that miss quorum are marked unresolved for the fallback.
func (e *Engine) evaluate(ctx context.Context, subject records.Subject, classified []classifier.Classified, now time.Time) []fieldWork {
	ctx, span := e.tracer.Start(ctx, "corroborate.panel")
	defer span.End()

	work := make([]fieldWork, len(classified))
	p := pool.New().WithMaxGoroutines(e.cfg.Workers)
	var conflicts int
	for i, cl := range classified {
		work[i] = fieldWork{classified: cl, item: revolver.Item{Classification: cl.Classification}}
		if cl.Classification.Kind != records.Conflicting {
			continue
		}
		conflicts++
		p.Go(func() {
			out := e.panel.Evaluate(ctx, cl.Classification.Field, cl.Observation.Candidates, panel.Context{
				Subject:  subject,
				Spec:     cl.Spec,
				Clusters: cl.Clusters,
				Now:      now,
			})
			w := &work[i]
			for _, f := range out.Failures {
				w.failures = append(w.failures, f)
			}
			if !out.QuorumMet {
				w.failures = append(w.failures, out.Err())
				w.item.Classification = cl.Classification.Unresolved()
				return
			}
			w.item.Signals = out.Signals
		})
	}
	p.Wait()
	span.SetAttributes(attribute.Int("conflicting_fields", conflicts))
	return work
}

// save hands the record to every sink. Sink errors are logged only.
func (e *Engine) save(ctx context.Context, rec *records.ResolvedRecord) {
	for _, sink := range e.sinks {
		// The request deadline does not apply to persistence.
		if err := sink.Save(context.WithoutCancel(ctx), rec); err != nil {
			logging.FromContext(ctx).Error().
				Err(err).
				Str("record_id", rec.ID).
				Msg("Failed to save record")
		}
	}
}
