package ror

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"rorsync/internal/logging"
	"rorsync/internal/records"
)

// Best converts the first candidate of resp into a MatchResult. Candidates are
// taken in the order the service returns them; no re-ranking happens here.
func Best(resp *Response) records.MatchResult {
	if resp == nil || len(resp.Items) == 0 {
		return records.NoMatchResult()
	}
	item := resp.Items[0]
	result := records.NoMatchResult()
	if item.Score != nil && item.Score.String() != "" {
		result.Score = item.Score.String()
	}
	if org := item.Organization; org != nil {
		result.RORID = valueOr(org.ID)
		result.RORName = valueOr(org.Name)
	}
	result.Substring = valueOr(item.Substring)
	if item.Chosen != nil {
		result.Chosen = strconv.FormatBool(*item.Chosen)
	}
	result.MatchingType = valueOr(item.MatchingType)
	return result
}

func valueOr(value *string) string {
	if value == nil {
		return records.NoMatch
	}
	return *value
}

// Limiter gates outbound matcher requests.
type Limiter interface {
	Wait(ctx context.Context) (time.Duration, error)
}

// Cache stores matcher answers between runs.
type Cache interface {
	Lookup(ctx context.Context, name string) (records.MatchResult, bool, error)
	Store(ctx context.Context, name string, result records.MatchResult) error
}

// Matcher resolves organization names to their best canonical identifier. It
// never fails; any search error degrades to the sentinel result.
type Matcher struct {
	searcher Searcher
	limiter  Limiter
	cache    Cache
	logger   *slog.Logger
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithLimiter gates every remote search through limiter.
func WithLimiter(limiter Limiter) MatcherOption {
	return func(m *Matcher) { m.limiter = limiter }
}

// WithCache consults cache before searching and records successful answers.
func WithCache(cache Cache) MatcherOption {
	return func(m *Matcher) { m.cache = cache }
}

// WithLogger sets the logger used for warnings.
func WithLogger(logger *slog.Logger) MatcherOption {
	return func(m *Matcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMatcher wires the matching core around a searcher.
func NewMatcher(searcher Searcher, opts ...MatcherOption) *Matcher {
	m := &Matcher{searcher: searcher, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "matcher")
	return m
}

// Match returns the best match for name, or the all-sentinel result.
func (m *Matcher) Match(ctx context.Context, name string) records.MatchResult {
	name = strings.TrimSpace(name)
	if name == "" || m == nil || m.searcher == nil {
		return records.NoMatchResult()
	}
	logger := logging.WithContext(ctx, m.logger)

	if m.cache != nil {
		cached, ok, err := m.cache.Lookup(ctx, name)
		switch {
		case err != nil:
			logger.Debug("match cache lookup failed", logging.String("name", name), logging.Error(err))
		case ok:
			logger.Debug("match cache hit", logging.String("name", name))
			return cached
		}
	}

	if m.limiter != nil {
		waited, err := m.limiter.Wait(ctx)
		if err != nil {
			logger.Debug("rate limiter wait aborted", logging.String("name", name), logging.Error(err))
			return records.NoMatchResult()
		}
		if waited > 0 {
			logger.Info("matcher request quota exhausted; paused until window reset",
				logging.String(logging.FieldEventType, "matcher_rate_limited"),
				logging.Duration("paused", waited),
			)
		}
	}

	resp, err := m.searcher.Search(ctx, name)
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(logger, "matcher response unusable; recording no match",
				"matcher_response_invalid",
				logging.String("name", name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "verify matcher.base_url and service health"),
				logging.String(logging.FieldImpact, "row written with No Match"),
			)
		}
		return records.NoMatchResult()
	}

	result := Best(resp)
	if m.cache != nil {
		if err := m.cache.Store(ctx, name, result); err != nil {
			logger.Debug("match cache store failed", logging.String("name", name), logging.Error(err))
		}
	}
	return result
}
