package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"rorsync/internal/logging"
	"rorsync/internal/records"
	"rorsync/internal/registry"
)

// ErrStartupFailures is returned when the registry never answers a page
// successfully before the failure budget is spent.
var ErrStartupFailures = errors.New("registry listing failed before the total was known")

// Source yields organizations in batches. Next returns io.EOF when exhausted.
type Source interface {
	Next(ctx context.Context) ([]records.Organization, error)
}

// Lister is the registry listing used by RegistrySource.
type Lister interface {
	ListOrganizations(ctx context.Context, size, offset int) (*registry.Page, error)
}

// RegistrySourceOptions configures paging.
type RegistrySourceOptions struct {
	PageSize    int
	StartOffset int
	NameLocale  string
	// MaxStartupFailures aborts after this many consecutive failed pages
	// while the total is still unknown. Zero disables the guard.
	MaxStartupFailures int
}

// RegistrySource pages through the registry listing. The total comes from
// the first successful page and never changes; the offset advances by one
// page after every attempt, failed or not.
type RegistrySource struct {
	lister Lister
	opts   RegistrySourceOptions
	logger *slog.Logger

	offset   int
	total    int
	known    bool
	failures int
	stats    SourceStats
}

// SourceStats counts what the source dropped.
type SourceStats struct {
	Pages          int
	PagesSkipped   int
	RecordsSkipped int
}

// NewRegistrySource constructs a registry-backed source.
func NewRegistrySource(lister Lister, opts RegistrySourceOptions, logger *slog.Logger) *RegistrySource {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.StartOffset < 0 {
		opts.StartOffset = 0
	}
	return &RegistrySource{
		lister: lister,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "registry-source"),
		offset: opts.StartOffset,
	}
}

// Total returns the record count reported by the first successful page.
func (s *RegistrySource) Total() (int, bool) { return s.total, s.known }

// Offset returns the offset of the next page to fetch.
func (s *RegistrySource) Offset() int { return s.offset }

// Stats returns paging counters.
func (s *RegistrySource) Stats() SourceStats { return s.stats }

// Next fetches pages until one yields a batch or the listing is exhausted.
func (s *RegistrySource) Next(ctx context.Context) ([]records.Organization, error) {
	logger := logging.WithContext(ctx, s.logger)
	for !s.known || s.offset < s.total {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		offset := s.offset
		page, err := s.lister.ListOrganizations(ctx, s.opts.PageSize, offset)
		s.offset += s.opts.PageSize
		s.stats.Pages++
		if err == nil && !s.known && page.Count == nil {
			err = errors.New("listing response has no count")
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.stats.PagesSkipped++
			logging.WarnWithContext(logger, "registry page skipped",
				"registry_page_failed",
				logging.Int("offset", offset),
				logging.Int("page_size", s.opts.PageSize),
				logging.Int(logging.FieldStatusCode, registry.StatusCode(err)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check registry.base_url, api key, and registry availability"),
				logging.String(logging.FieldImpact, "records on this page are missing from the output"),
			)
			if !s.known {
				s.failures++
				if s.opts.MaxStartupFailures > 0 && s.failures >= s.opts.MaxStartupFailures {
					return nil, fmt.Errorf("%w: %d consecutive pages failed (last: %v)", ErrStartupFailures, s.failures, err)
				}
			}
			continue
		}

		if !s.known {
			s.total = *page.Count
			s.known = true
			logger.Info("registry listing started",
				logging.Int("total", s.total),
				logging.Int("start_offset", s.opts.StartOffset),
				logging.Int("page_size", s.opts.PageSize),
			)
		}
		batch := s.convert(logger, page.Items)
		logger.Debug("registry page fetched",
			logging.Int("offset", offset),
			logging.Int("items", len(page.Items)),
			logging.Int("total", s.total),
		)
		return batch, nil
	}
	return nil, io.EOF
}

func (s *RegistrySource) convert(logger *slog.Logger, items []registry.ListItem) []records.Organization {
	batch := make([]records.Organization, 0, len(items))
	for _, item := range items {
		uuid := strings.TrimSpace(item.UUID)
		if uuid == "" {
			s.stats.RecordsSkipped++
			logging.WarnWithContext(logger, "registry record without uuid skipped",
				"registry_record_invalid",
				logging.String("name", item.LocalizedName(s.opts.NameLocale)),
				logging.Outcome(logging.OutcomeSkipped),
				logging.Reason("missing_uuid"),
			)
			continue
		}
		batch = append(batch, records.Organization{
			Name:         item.LocalizedName(s.opts.NameLocale),
			UUID:         uuid,
			WorkflowStep: item.WorkflowStep(),
		})
	}
	return batch
}

// FileSource replays organizations read from a file in fixed-size batches.
type FileSource struct {
	orgs      []records.Organization
	batchSize int
	pos       int
}

// NewFileSource wraps orgs. A non-positive batchSize yields one row per batch.
func NewFileSource(orgs []records.Organization, batchSize int) *FileSource {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &FileSource{orgs: orgs, batchSize: batchSize}
}

// Len returns the number of organizations in the source.
func (s *FileSource) Len() int { return len(s.orgs) }

// Total reports Len; a file source always knows its size.
func (s *FileSource) Total() (int, bool) { return len(s.orgs), true }

// Next returns the next batch.
func (s *FileSource) Next(ctx context.Context) ([]records.Organization, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.orgs) {
		return nil, io.EOF
	}
	end := min(s.pos+s.batchSize, len(s.orgs))
	batch := s.orgs[s.pos:end]
	s.pos = end
	return batch, nil
}
