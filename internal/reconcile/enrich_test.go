package reconcile_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"rorsync/internal/ratelimit"
	"rorsync/internal/reconcile"
	"rorsync/internal/records"
	"rorsync/internal/registry"
	"rorsync/internal/ror"
	"rorsync/internal/testsupport"
)

type pageResult struct {
	page *registry.Page
	err  error
}

type fakeLister struct {
	pages   map[int]pageResult
	offsets []int
}

func (f *fakeLister) ListOrganizations(_ context.Context, _ int, offset int) (*registry.Page, error) {
	f.offsets = append(f.offsets, offset)
	res, ok := f.pages[offset]
	if !ok {
		return nil, errors.New("unexpected offset")
	}
	return res.page, res.err
}

func page(count int, uuids ...string) pageResult {
	p := &registry.Page{Count: &count}
	for _, id := range uuids {
		p.Items = append(p.Items, registry.ListItem{
			UUID:     id,
			Name:     map[string]string{"en_GB": "name " + id},
			Workflow: &registry.Workflow{Step: "approved"},
		})
	}
	return pageResult{page: p}
}

type nameMatcher map[string]records.MatchResult

func (m nameMatcher) Match(_ context.Context, name string) records.MatchResult {
	if res, ok := m[name]; ok {
		return res
	}
	return records.NoMatchResult()
}

type memorySink struct {
	rows    []records.EnrichedRow
	flushes int
}

func (s *memorySink) Write(row records.EnrichedRow) error {
	s.rows = append(s.rows, row)
	return nil
}

func (s *memorySink) Flush() error {
	s.flushes++
	return nil
}

func drain(t *testing.T, src reconcile.Source) []records.Organization {
	t.Helper()
	var out []records.Organization
	for {
		batch, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next returned error: %v", err)
		}
		out = append(out, batch...)
	}
}

func TestRegistrySourceSkipsFailedPagesAndKeepsTotal(t *testing.T) {
	lister := &fakeLister{pages: map[int]pageResult{
		0: page(5, "a", "b"),
		2: {err: &registry.StatusError{Op: "list organizations", StatusCode: 500}},
		4: page(99, "e"),
	}}
	src := reconcile.NewRegistrySource(lister, reconcile.RegistrySourceOptions{PageSize: 2, NameLocale: "en_GB"}, nil)

	orgs := drain(t, src)
	if len(orgs) != 3 || orgs[0].UUID != "a" || orgs[2].UUID != "e" {
		t.Fatalf("unexpected organizations: %+v", orgs)
	}
	if want := []int{0, 2, 4}; len(lister.offsets) != 3 || lister.offsets[2] != want[2] {
		t.Fatalf("offsets = %v, want %v", lister.offsets, want)
	}
	if total, known := src.Total(); !known || total != 5 {
		t.Fatalf("total = %d known=%v", total, known)
	}
	if stats := src.Stats(); stats.PagesSkipped != 1 || stats.Pages != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if orgs[0].Name != "name a" || orgs[0].WorkflowStep != "approved" {
		t.Fatalf("unexpected mapping: %+v", orgs[0])
	}
}

func TestRegistrySourceStartOffsetAndEmptyListing(t *testing.T) {
	lister := &fakeLister{pages: map[int]pageResult{10: page(0)}}
	src := reconcile.NewRegistrySource(lister, reconcile.RegistrySourceOptions{PageSize: 5, StartOffset: 10}, nil)
	if orgs := drain(t, src); len(orgs) != 0 {
		t.Fatalf("expected no organizations, got %+v", orgs)
	}
	if len(lister.offsets) != 1 || lister.offsets[0] != 10 {
		t.Fatalf("offsets = %v", lister.offsets)
	}
}

func TestRegistrySourceStartupGuard(t *testing.T) {
	lister := &fakeLister{pages: map[int]pageResult{}}
	src := reconcile.NewRegistrySource(lister, reconcile.RegistrySourceOptions{PageSize: 10, MaxStartupFailures: 3}, nil)
	_, err := src.Next(context.Background())
	if !errors.Is(err, reconcile.ErrStartupFailures) {
		t.Fatalf("expected ErrStartupFailures, got %v", err)
	}
	if want := []int{0, 10, 20}; len(lister.offsets) != len(want) || lister.offsets[2] != 20 {
		t.Fatalf("offsets = %v, want %v", lister.offsets, want)
	}
}

func TestRegistrySourceSkipsRecordsWithoutUUID(t *testing.T) {
	lister := &fakeLister{pages: map[int]pageResult{0: page(2, "", "b")}}
	src := reconcile.NewRegistrySource(lister, reconcile.RegistrySourceOptions{PageSize: 10}, nil)
	orgs := drain(t, src)
	if len(orgs) != 1 || orgs[0].UUID != "b" || src.Stats().RecordsSkipped != 1 {
		t.Fatalf("orgs=%+v stats=%+v", orgs, src.Stats())
	}
}

func TestEnricherWritesRowsInOrderAndFlushesPerBatch(t *testing.T) {
	orgs := []records.Organization{
		{Name: "Alpha", UUID: "1", WorkflowStep: "Approved"},
		{Name: "Beta", UUID: "2"},
		{Name: "", UUID: "3"},
	}
	matched := records.MatchResult{Score: "1.0", RORID: "https://ror.org/01", RORName: "Alpha", Substring: "Alpha", Chosen: "true", MatchingType: "EXACT"}
	sink := &memorySink{}
	enricher := reconcile.NewEnricher(nameMatcher{"Alpha": matched}, sink, nil)

	stats, err := enricher.Run(context.Background(), reconcile.NewFileSource(orgs, 2))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Processed != 3 || stats.Matched != 1 || stats.Unmatched != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(sink.rows) != 3 || sink.rows[0].MatchResult != matched || sink.rows[2].UUID != "3" {
		t.Fatalf("rows = %+v", sink.rows)
	}
	if sink.rows[1].MatchResult != records.NoMatchResult() {
		t.Fatalf("expected sentinel row, got %+v", sink.rows[1])
	}
	if sink.flushes != 2 {
		t.Fatalf("expected one flush per batch, got %d", sink.flushes)
	}
}

func TestEnricherStopsOnCancellationAndFlushes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &memorySink{}
	cancelling := matcherFunc(func(context.Context, string) records.MatchResult {
		cancel()
		return records.NoMatchResult()
	})
	orgs := []records.Organization{{Name: "a", UUID: "1"}, {Name: "b", UUID: "2"}}

	stats, err := reconcile.NewEnricher(cancelling, sink, nil).Run(ctx, reconcile.NewFileSource(orgs, 10))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stats.Processed != 0 || len(sink.rows) != 0 || sink.flushes != 1 {
		t.Fatalf("interrupted lookup must not be written: stats=%+v rows=%d flushes=%d", stats, len(sink.rows), sink.flushes)
	}
}

type fixedSearcher struct{ resp *ror.Response }

func (f fixedSearcher) Search(context.Context, string) (*ror.Response, error) { return f.resp, nil }

func TestEnricherDropsRowInterruptedDuringRateLimitWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id, name := "https://ror.org/alpha", "Alpha"
	searcher := fixedSearcher{resp: &ror.Response{Items: []ror.Item{{Organization: &ror.Organization{ID: &id, Name: &name}}}}}
	limiter := ratelimit.NewWindow(1, time.Minute, ratelimit.WithSleeper(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))
	matcher := ror.NewMatcher(searcher, ror.WithLimiter(limiter))
	sink := &memorySink{}
	orgs := []records.Organization{{Name: "Alpha", UUID: "1"}, {Name: "Alpha", UUID: "2"}}

	stats, err := reconcile.NewEnricher(matcher, sink, nil).Run(ctx, reconcile.NewFileSource(orgs, 10))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sink.rows) != 1 || sink.rows[0].UUID != "1" || sink.rows[0].RORID != id {
		t.Fatalf("expected only the completed lookup to be written, got %+v", sink.rows)
	}
	if stats.Processed != 1 || stats.Unmatched != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestEnricherLogsEveryOrganizationAtInfo(t *testing.T) {
	orgs := []records.Organization{{Name: "Alpha", UUID: "1"}, {Name: "Beta", UUID: "2"}, {Name: "Gamma", UUID: "3"}}
	rec, logger := testsupport.NewLogRecorder()
	if _, err := reconcile.NewEnricher(nameMatcher{}, &memorySink{}, logger).Run(context.Background(), reconcile.NewFileSource(orgs, 2)); err != nil {
		t.Fatal(err)
	}
	var lines []testsupport.LogRecord
	for _, entry := range rec.Records() {
		if entry.Message == "organization processed" {
			lines = append(lines, entry)
		}
	}
	if len(lines) != len(orgs) {
		t.Fatalf("expected one line per organization, got %d", len(lines))
	}
	for i, line := range lines {
		if line.Level != slog.LevelInfo {
			t.Fatalf("line %d logged at %v, want info", i, line.Level)
		}
		if line.Attrs["processed"] != strconv.Itoa(i+1) || line.Attrs["total"] != "3" || line.Attrs["name"] != orgs[i].Name {
			t.Fatalf("unexpected progress attrs: %+v", line.Attrs)
		}
	}
}

func TestEnricherPropagatesStartupFailure(t *testing.T) {
	src := reconcile.NewRegistrySource(&fakeLister{}, reconcile.RegistrySourceOptions{PageSize: 1, MaxStartupFailures: 1}, nil)
	_, err := reconcile.NewEnricher(nameMatcher{}, &memorySink{}, nil).Run(context.Background(), src)
	if !errors.Is(err, reconcile.ErrStartupFailures) {
		t.Fatalf("expected ErrStartupFailures, got %v", err)
	}
}

type matcherFunc func(ctx context.Context, name string) records.MatchResult

func (f matcherFunc) Match(ctx context.Context, name string) records.MatchResult { return f(ctx, name) }

func TestEnricherSamplesProgressLogs(t *testing.T) {
	orgs := make([]records.Organization, 20)
	for i := range orgs {
		orgs[i] = records.Organization{Name: "org", UUID: string(rune('a' + i))}
	}
	rec, logger := testsupport.NewLogRecorder()
	if _, err := reconcile.NewEnricher(nameMatcher{}, &memorySink{}, logger).Run(context.Background(), reconcile.NewFileSource(orgs, 1)); err != nil {
		t.Fatal(err)
	}
	var progress int
	for _, entry := range rec.Records() {
		if entry.Message == "enrichment progress" {
			progress++
		}
	}
	if progress != 11 {
		t.Fatalf("expected the first batch plus one line per 10%% bucket, got %d", progress)
	}
}
