package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"rorsync/internal/config"
	"rorsync/internal/csvio"
	"rorsync/internal/records"
	"rorsync/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("PURE_API_KEY", "")
	t.Setenv("PURE_BASE_URL", "")
	t.Setenv("ROR_BASE_URL", "")

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Matcher.MaxRequests = 0

	configPath := filepath.Join(homeDir, ".config", "rorsync", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func readOutput(t *testing.T, path string) []records.EnrichedRow {
	t.Helper()
	rows, err := csvio.ReadEnriched(path, records.ColumnUUID, records.ColumnRORID)
	if err != nil {
		t.Fatalf("read output %s: %v", path, err)
	}
	return rows
}

func writeEnriched(t *testing.T, path string, rows ...records.EnrichedRow) string {
	t.Helper()
	lines := [][]string{records.Header}
	for _, row := range rows {
		lines = append(lines, row.Fields())
	}
	return testsupport.WriteCSV(t, path, ",", lines...)
}

func enrichedRow(uuid, step, rorID string) records.EnrichedRow {
	result := records.NoMatchResult()
	result.RORID = rorID
	return records.EnrichedRow{
		Organization: records.Organization{Name: "org " + uuid, UUID: uuid, WorkflowStep: step},
		MatchResult:  result,
	}
}

// fakeMatcher answers affiliation queries from a fixed table of raw JSON
// items and counts the requests it receives.
type fakeMatcher struct {
	mu       sync.Mutex
	answers  map[string]string
	requests []string
}

func (f *fakeMatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("affiliation")
	f.mu.Lock()
	f.requests = append(f.requests, name)
	item, ok := f.answers[name]
	f.mu.Unlock()
	if r.URL.Path != "/organizations" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		_, _ = w.Write([]byte(`{"number_of_results":0,"items":[]}`))
		return
	}
	_, _ = w.Write([]byte(`{"number_of_results":1,"items":[` + item + `]}`))
}

func (f *fakeMatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func startMatcher(t *testing.T, answers map[string]string) (*fakeMatcher, string) {
	t.Helper()
	fake := &fakeMatcher{answers: answers}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return fake, server.URL
}

type registryRecord struct {
	Name        string
	Step        string
	Version     json.RawMessage
	Identifiers []json.RawMessage
}

// fakeRegistry implements the listing, record, update and merge endpoints
// over an ordered in-memory record set.
type fakeRegistry struct {
	mu      sync.Mutex
	order   []string
	records map[string]*registryRecord
	merges  [][]string
	puts    int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{records: map[string]*registryRecord{}}
}

func (f *fakeRegistry) add(uuid, name, step string) {
	f.order = append(f.order, uuid)
	f.records[uuid] = &registryRecord{Name: name, Step: step, Version: json.RawMessage(`"1"`)}
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Header.Get("api-key") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/external-organizations/merge" && r.Method == http.MethodPost:
		var body struct {
			Items []struct {
				UUID       string `json:"uuid"`
				SystemName string `json:"systemName"`
			} `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var uuids []string
		for _, item := range body.Items {
			if item.SystemName != "ExternalOrganization" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			uuids = append(uuids, item.UUID)
		}
		f.merges = append(f.merges, uuids)
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/external-organizations" && r.Method == http.MethodGet:
		f.list(w, r)
	case strings.HasPrefix(r.URL.Path, "/external-organizations/"):
		f.record(w, r, strings.TrimPrefix(r.URL.Path, "/external-organizations/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeRegistry) list(w http.ResponseWriter, r *http.Request) {
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	type item struct {
		UUID     string            `json:"uuid"`
		Name     map[string]string `json:"name"`
		Workflow map[string]string `json:"workflow"`
	}
	page := struct {
		Count int    `json:"count"`
		Items []item `json:"items"`
	}{Count: len(f.order), Items: []item{}}
	for i := offset; i < len(f.order) && i < offset+size; i++ {
		rec := f.records[f.order[i]]
		page.Items = append(page.Items, item{
			UUID:     f.order[i],
			Name:     map[string]string{"en_GB": rec.Name},
			Workflow: map[string]string{"step": rec.Step},
		})
	}
	_ = json.NewEncoder(w).Encode(page)
}

func (f *fakeRegistry) record(w http.ResponseWriter, r *http.Request, uuid string) {
	rec, ok := f.records[uuid]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{
			"uuid":        uuid,
			"version":     rec.Version,
			"identifiers": rec.Identifiers,
		})
	case http.MethodPut:
		var body struct {
			Version     json.RawMessage   `json:"version"`
			Identifiers []json.RawMessage `json:"identifiers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if string(body.Version) != string(rec.Version) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.puts++
		rec.Identifiers = body.Identifiers
		rec.Version = json.RawMessage(strconv.Quote(strconv.Itoa(f.puts + 1)))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeRegistry) mergeCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.merges...)
}

func (f *fakeRegistry) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func startRegistry(t *testing.T, fake *fakeRegistry) string {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return server.URL
}
