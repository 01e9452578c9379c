package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathan/competitor-lens/internal/artifacts"
	"github.com/nathan/competitor-lens/internal/llm"
	"github.com/nathan/competitor-lens/internal/pipeline"
	"github.com/nathan/competitor-lens/internal/types"
)

// memBackend is an in-memory implementation of the four store interfaces the
// server depends on. Runs are cloned on the way in and out so the executor
// goroutine and test assertions never share a *pipeline.Run.
type memBackend struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*pipeline.Run
	runsByKey map[string]uuid.UUID
	records   []artifacts.Record
	evidence  map[string][]types.EvidenceSource
	projects  map[string]*types.ProjectInputs
}

func newMemBackend() *memBackend {
	return &memBackend{
		runs:      make(map[uuid.UUID]*pipeline.Run),
		runsByKey: make(map[string]uuid.UUID),
		evidence:  make(map[string][]types.EvidenceSource),
		projects:  make(map[string]*types.ProjectInputs),
	}
}

func cloneRun(run *pipeline.Run) *pipeline.Run {
	if run == nil {
		return nil
	}
	out := *run
	out.Metrics.Steps = append([]pipeline.StepEntry(nil), run.Metrics.Steps...)
	if run.Output != nil {
		o := *run.Output
		out.Output = &o
	}
	return &out
}

func (s *memBackend) InsertRun(_ context.Context, run *pipeline.Run) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runsByKey[run.IdempotencyKey]; ok {
		return false, nil
	}
	s.runs[run.ID] = cloneRun(run)
	s.runsByKey[run.IdempotencyKey] = run.ID
	return true, nil
}

func (s *memBackend) UpdateRun(_ context.Context, run *pipeline.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return errors.New("run not found")
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *memBackend) GetRun(_ context.Context, id uuid.UUID) (*pipeline.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRun(s.runs[id]), nil
}

func (s *memBackend) GetRunByKey(_ context.Context, key string) (*pipeline.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.runsByKey[key]
	if !ok {
		return nil, nil
	}
	return cloneRun(s.runs[id]), nil
}

func (s *memBackend) GetLatestRunForProject(_ context.Context, projectID string) (*pipeline.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *pipeline.Run
	for _, run := range s.runs {
		if run.ProjectID != projectID {
			continue
		}
		if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
			latest = run
		}
	}
	return cloneRun(latest), nil
}

func (s *memBackend) ReclaimStaleRun(_ context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.UpdatedAt.After(cutoff) {
		return false, nil
	}
	if run.Status != pipeline.StatusRunning && run.Status != pipeline.StatusQueued {
		return false, nil
	}
	run.Status = pipeline.StatusQueued
	run.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *memBackend) InsertArtifact(_ context.Context, rec *artifacts.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

func (s *memBackend) ListArtifacts(_ context.Context, projectID string, typ artifacts.Type) ([]artifacts.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []artifacts.Record
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.ProjectID == projectID && rec.Type == typ {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memBackend) ListEvidence(_ context.Context, projectID string) ([]types.EvidenceSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.EvidenceSource(nil), s.evidence[projectID]...), nil
}

func (s *memBackend) GetProjectInputs(_ context.Context, projectID string) (*types.ProjectInputs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[projectID], nil
}

func (s *memBackend) seedArtifact(t *testing.T, projectID string, typ artifacts.Type, payload any) {
	t.Helper()
	content, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, s.InsertArtifact(context.Background(), &artifacts.Record{
		ID:        uuid.New(),
		ProjectID: projectID,
		Type:      typ,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}))
}

// stubClient satisfies llm.Client for handler tests that never reach
// generation.
type stubClient struct{}

func (stubClient) Generate(context.Context, llm.GenerateRequest) (*llm.GenerateResponse, error) {
	return nil, errors.New("no generation scripted")
}

func (stubClient) GetModel(llm.ModelTier) string { return "stub-model" }

func (stubClient) Provider() string { return "stub" }

func (stubClient) Close() error { return nil }

func newTestServer(t *testing.T) (*memBackend, *httptest.Server) {
	t.Helper()
	store := newMemBackend()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := newServer(store, store, store, store, stubClient{}, Config{StaleThreshold: time.Minute}, logger)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(func() {
		ts.Close()
		srv.rateLimiter.Stop()
	})
	return store, ts
}

func seedProject(store *memBackend, id string) {
	store.projects[id] = &types.ProjectInputs{
		ID:           id,
		Name:         "Invoicely",
		Positioning:  "invoicing for freelancers",
		InputVersion: 3,
		Competitors: []types.CompetitorInput{
			{ID: "c1", Name: "Acme Billing"},
			{ID: "c2", Name: "Ledgerly"},
		},
	}
}

func seedEvidence(store *memBackend, projectID string) {
	now := time.Now().UTC()
	store.evidence[projectID] = []types.EvidenceSource{
		{URL: "https://acme.example/pricing", SourceType: types.EvidencePricing, ExtractedText: "Pro plan $29/mo.", ExtractedAt: now.AddDate(0, 0, -1), SourceConfidence: 0.9, Domain: "acme.example"},
		{URL: "https://acme.example/docs", SourceType: types.EvidenceDocs, ExtractedText: "API reference.", ExtractedAt: now.AddDate(0, 0, -2), SourceConfidence: 0.8, Domain: "acme.example"},
		{URL: "https://reviews.example/acme", SourceType: types.EvidenceReviews, ExtractedText: "Settlement is slow.", ExtractedAt: now.AddDate(0, 0, -3), SourceConfidence: 0.7, Domain: "reviews.example"},
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHandleHealth(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]string
	status := getJSON(t, ts.URL+"/health", &body)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestStartAnalysis_UnknownProject(t *testing.T) {
	_, ts := newTestServer(t)

	var body errorBody
	status := postJSON(t, ts.URL+"/projects/ghost/analysis", &body)

	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, body.OK)
	assert.Equal(t, string(pipeline.CodeNoInputs), body.Error.Code)
}

func TestStartAnalysis_ExecutesAsync(t *testing.T) {
	store, ts := newTestServer(t)
	seedProject(store, "p1")
	// No evidence is seeded, so the run fails at the evidence gate.

	var body runStatusResponse
	status := postJSON(t, ts.URL+"/projects/p1/analysis", &body)

	assert.Equal(t, http.StatusAccepted, status)
	runID, err := uuid.Parse(body.RunID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		run, err := store.GetRun(context.Background(), runID)
		return err == nil && run != nil && run.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	var final runStatusResponse
	status = getJSON(t, ts.URL+"/analysis/"+body.RunID, &final)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, pipeline.StatusFailed, final.Status)
	assert.Equal(t, string(pipeline.CodeInsufficientEvidence), final.ErrorCode)
	assert.NotEmpty(t, final.ErrorMessage)
}

func TestStartAnalysis_ReturnsSucceededRunWithoutReexecution(t *testing.T) {
	store, ts := newTestServer(t)
	seedProject(store, "p1")

	now := time.Now().UTC()
	done := &pipeline.Run{
		ID:              uuid.New(),
		ProjectID:       "p1",
		InputVersion:    3,
		PipelineVersion: pipeline.Version,
		IdempotencyKey:  pipeline.IdempotencyKey("p1", 3, pipeline.Version),
		Status:          pipeline.StatusSucceeded,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	inserted, err := store.InsertRun(context.Background(), done)
	require.NoError(t, err)
	require.True(t, inserted)

	var body runStatusResponse
	status := postJSON(t, ts.URL+"/projects/p1/analysis", &body)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, done.ID.String(), body.RunID)
	assert.Equal(t, pipeline.StatusSucceeded, body.Status)
}

func TestRunStatus_InvalidID(t *testing.T) {
	_, ts := newTestServer(t)

	var body errorBody
	status := getJSON(t, ts.URL+"/analysis/not-a-uuid", &body)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_RUN_ID", body.Error.Code)
}

func TestRunStatus_NotFound(t *testing.T) {
	_, ts := newTestServer(t)

	var body errorBody
	status := getJSON(t, ts.URL+"/analysis/"+uuid.NewString(), &body)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "RUN_NOT_FOUND", body.Error.Code)
}

func TestLatestRun(t *testing.T) {
	store, ts := newTestServer(t)

	var missing errorBody
	status := getJSON(t, ts.URL+"/projects/p1/runs/latest", &missing)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "RUN_NOT_FOUND", missing.Error.Code)

	now := time.Now().UTC()
	run := &pipeline.Run{
		ID:              uuid.New(),
		ProjectID:       "p1",
		InputVersion:    3,
		PipelineVersion: pipeline.Version,
		IdempotencyKey:  pipeline.IdempotencyKey("p1", 3, pipeline.Version),
		Status:          pipeline.StatusQueued,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err := store.InsertRun(context.Background(), run)
	require.NoError(t, err)

	var body runStatusResponse
	status = getJSON(t, ts.URL+"/projects/p1/runs/latest", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, run.ID.String(), body.RunID)
	assert.Equal(t, "0/5", body.Progress)
}

func TestDecisionModel(t *testing.T) {
	store, ts := newTestServer(t)

	var missing errorBody
	status := getJSON(t, ts.URL+"/projects/p1/decision-model", &missing)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "DECISION_MODEL_NOT_FOUND", missing.Error.Code)

	citation := types.Citation{
		URL:          "https://reviews.example/acme",
		EvidenceType: types.EvidenceReviews,
		PublishedAt:  time.Now().AddDate(0, 0, -5).UTC().Format(time.RFC3339),
	}
	store.seedArtifact(t, "p1", artifacts.TypeProfiles, artifacts.ProfilesPayload{
		RunID: "run-1",
		Profiles: []types.CompetitorSnapshot{
			{Name: "Acme Billing", Positioning: "mid-market invoicing", Citations: []types.Citation{citation}},
		},
	})
	store.seedArtifact(t, "p1", artifacts.TypeOpportunitiesV3, artifacts.OpportunitiesV3Payload{
		RunID:   "run-1",
		Summary: "Current analysis summary.",
		Opportunities: []types.Opportunity{
			{
				ID:        "instant-payouts--p1",
				Title:     "Instant payouts",
				Rationale: "Users complain about settlement delays.",
				Citations: []types.Citation{citation},
				Scoring: types.Scoring{
					Breakdown: map[string]float64{types.DimCustomerPain: 8, types.DimWillingnessToPay: 7},
				},
			},
		},
	})

	var model types.DecisionModel
	status = getJSON(t, ts.URL+"/projects/p1/decision-model", &model)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "p1", model.ProjectID)
	assert.Equal(t, "run-1", model.RunID)
	require.Len(t, model.Opportunities, 1)
	require.Len(t, model.Competitors, 1)
}

func TestEvidenceCoverage(t *testing.T) {
	store, ts := newTestServer(t)
	seedEvidence(store, "p1")

	var body struct {
		Coverage struct {
			TotalCitations int      `json:"totalCitations"`
			SourceTypes    []string `json:"sourceTypes"`
			RecencyLabel   string   `json:"recencyLabel"`
		} `json:"coverage"`
		Readiness struct {
			IsReady bool     `json:"isReady"`
			Missing []string `json:"missing"`
		} `json:"readiness"`
	}
	status := getJSON(t, ts.URL+"/projects/p1/evidence/coverage", &body)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, body.Coverage.TotalCitations)
	assert.Equal(t, "fresh", body.Coverage.RecencyLabel)
	assert.True(t, body.Readiness.IsReady)
	assert.Equal(t, []string{types.EvidenceChangelog}, body.Readiness.Missing)
}

func TestEvidenceCoverage_EmptyProject(t *testing.T) {
	_, ts := newTestServer(t)

	var body struct {
		Readiness struct {
			IsReady bool     `json:"isReady"`
			Reasons []string `json:"reasons"`
		} `json:"readiness"`
	}
	status := getJSON(t, ts.URL+"/projects/empty/evidence/coverage", &body)

	assert.Equal(t, http.StatusOK, status)
	assert.False(t, body.Readiness.IsReady)
	assert.NotEmpty(t, body.Readiness.Reasons)
}

func TestRateLimitHeaders(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/projects/ghost/analysis", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
}
