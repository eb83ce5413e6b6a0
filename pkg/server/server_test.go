package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TryMightyAI/ragshield/pkg/baseline"
	"github.com/TryMightyAI/ragshield/pkg/corpus"
	"github.com/TryMightyAI/ragshield/pkg/detect"
	"github.com/TryMightyAI/ragshield/pkg/quarantine"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	coordinator := quarantine.NewCoordinator(quarantine.CoordinatorOptions{
		Store: quarantine.NewMemoryStore(),
	})
	return New(Options{
		Pipeline:    detect.NewPipeline(detect.PipelineOptions{}),
		Coordinator: coordinator,
	})
}

func postDoc(t *testing.T, s *Server, doc corpus.Document) (int, []byte) {
	t.Helper()
	body, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	req := httptest.NewRequest("POST", "/v1/scan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, raw
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.App().Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("health returned %d", resp.StatusCode)
	}
}

func TestScanEndpointCleanDocument(t *testing.T) {
	s := newTestServer(t)
	doc := corpus.Document{
		ID:        "doc-1",
		Text:      "the migration guide describes how to move existing deployments onto the new cluster without downtime",
		Embedding: []float32{6, 8},
		Metadata: corpus.Metadata{
			Source:    "internal-knowledge-base",
			CreatedAt: time.Now().Add(-time.Hour),
		},
	}

	status, raw := postDoc(t, s, doc)
	if status != 200 {
		t.Fatalf("scan returned %d: %s", status, raw)
	}

	var v detect.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if v.Decision != detect.DecisionClean {
		t.Fatalf("decision %s at final %v, expected %s", v.Decision, v.Composite.Final, detect.DecisionClean)
	}
	if v.DocumentID != "doc-1" || v.VerdictID == "" {
		t.Fatalf("verdict identity incomplete: %+v", v)
	}
}

func TestScanEndpointRejectsInvalidDocument(t *testing.T) {
	s := newTestServer(t)
	status, _ := postDoc(t, s, corpus.Document{ID: "doc-1"}) // no text
	if status != 400 {
		t.Fatalf("invalid document returned %d, expected 400", status)
	}
}

func TestScanEndpointIndeterminateIs422(t *testing.T) {
	s := newTestServer(t)
	doc := corpus.Document{
		ID:   "doc-novec",
		Text: "a perfectly ordinary paragraph that simply arrives without any embedding vector attached",
		Metadata: corpus.Metadata{
			Source:    "internal-knowledge-base",
			CreatedAt: time.Now().Add(-time.Hour),
		},
	}
	status, raw := postDoc(t, s, doc)
	if status != 422 {
		t.Fatalf("indeterminate scan returned %d, expected 422: %s", status, raw)
	}
}

func TestBaselineReportEndpoint(t *testing.T) {
	s := newTestServer(t)
	doc := corpus.Document{
		ID:        "doc-1",
		Text:      "the migration guide describes how to move existing deployments onto the new cluster without downtime",
		Embedding: []float32{6, 8},
		Metadata: corpus.Metadata{
			Source:    "internal-knowledge-base",
			CreatedAt: time.Now().Add(-time.Hour),
		},
	}
	if status, raw := postDoc(t, s, doc); status != 200 {
		t.Fatalf("seed scan returned %d: %s", status, raw)
	}

	resp, err := s.App().Test(httptest.NewRequest("GET", "/v1/baseline/"+baseline.PopEmbeddingNorms, nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("baseline report returned %d", resp.StatusCode)
	}

	var report baseline.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Count != 1 {
		t.Fatalf("report count %d, expected 1", report.Count)
	}
}

func TestBaselineReportUnknownPopulation(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.App().Test(httptest.NewRequest("GET", "/v1/baseline/nonsense", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("unknown population returned %d, expected 404", resp.StatusCode)
	}
}

func TestQuarantineRecordEndpoints(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/v1/quarantine/doc-missing", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("missing record returned %d, expected 404", resp.StatusCode)
	}

	resp, err = s.App().Test(httptest.NewRequest("GET", "/v1/quarantine", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("record list returned %d", resp.StatusCode)
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if out.Count != 0 {
		t.Fatalf("fresh store lists %d records", out.Count)
	}
}
