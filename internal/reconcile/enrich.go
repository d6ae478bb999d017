package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"rorsync/internal/logging"
	"rorsync/internal/records"
)

// Matcher resolves an organization name. Implementations never fail.
type Matcher interface {
	Match(ctx context.Context, name string) records.MatchResult
}

// RowWriter receives enriched rows.
type RowWriter interface {
	Write(row records.EnrichedRow) error
	Flush() error
}

// Totaler is implemented by sources that know, or learn, how many records
// they will yield.
type Totaler interface {
	Total() (int, bool)
}

// EnrichStats summarizes an enrichment run.
type EnrichStats struct {
	Processed int
	Matched   int
	Unmatched int
}

// Enricher joins organizations with their best match and writes the rows in
// encounter order, flushing after every batch.
type Enricher struct {
	matcher Matcher
	sink    RowWriter
	logger  *slog.Logger
}

// NewEnricher constructs an enrichment pipeline.
func NewEnricher(matcher Matcher, sink RowWriter, logger *slog.Logger) *Enricher {
	return &Enricher{
		matcher: matcher,
		sink:    sink,
		logger:  logging.NewComponentLogger(logger, "enrich"),
	}
}

// Run drains src. On cancellation the rows written so far are flushed and
// the context error is returned with the partial stats.
func (e *Enricher) Run(ctx context.Context, src Source) (EnrichStats, error) {
	var stats EnrichStats
	logger := logging.WithContext(ctx, e.logger)
	sampler := logging.NewProgressSampler(10)
	for {
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, errors.Join(err, e.sink.Flush())
		}
		total := 0
		if t, ok := src.(Totaler); ok {
			total, _ = t.Total()
		}
		for _, org := range batch {
			if err := ctx.Err(); err != nil {
				return stats, errors.Join(err, e.sink.Flush())
			}
			result := e.matcher.Match(ctx, org.Name)
			// A cancelled lookup returns the sentinel, which is not a no-match.
			if err := ctx.Err(); err != nil {
				return stats, errors.Join(err, e.sink.Flush())
			}
			row := records.EnrichedRow{Organization: org, MatchResult: result}
			if err := e.sink.Write(row); err != nil {
				return stats, fmt.Errorf("write %s: %w", org.UUID, err)
			}
			stats.Processed++
			if result.Matched() {
				stats.Matched++
			} else {
				stats.Unmatched++
			}
			logger.Info("organization processed",
				logging.Int("processed", stats.Processed),
				logging.Int("total", total),
				logging.String("name", org.Name),
				logging.String(logging.FieldUUID, org.UUID),
				logging.String(logging.FieldRORID, result.RORID),
			)
		}
		if err := e.sink.Flush(); err != nil {
			return stats, err
		}
		attrs := []logging.Attr{
			logging.Int("rows", len(batch)),
			logging.Int("processed", stats.Processed),
			logging.Int("matched", stats.Matched),
		}
		if total > 0 {
			attrs = append(attrs, logging.Int("total", total), logging.Int("percent", int(logging.Percent(stats.Processed, total))))
		}
		if sampler.ShouldLog(stats.Processed, total) {
			logger.Info("enrichment progress", logging.Args(attrs...)...)
		} else {
			logger.Debug("batch written", logging.Args(attrs...)...)
		}
	}
	return stats, nil
}
