package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-chi/chi/v5"

	summaryParser "github.com/zhouzirui/medichat/backend/internal/analysis/summary"
	chatservice "github.com/zhouzirui/medichat/backend/internal/service/chat"
	"github.com/zhouzirui/medichat/backend/internal/service/inference"
)

type stubGenerator struct {
	reply string
	err   error
	calls int
}

func (s *stubGenerator) Generate(_ context.Context, _ string, _ inference.Params) (string, error) {
	s.calls++
	return s.reply, s.err
}

func setupRouter(gen *stubGenerator) *chi.Mux {
	svc := chatservice.NewService(gen, chatservice.Options{})
	r := chi.NewRouter()
	New(svc, nil).RegisterRoutes(r)
	return r
}

func postSummary(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/summary", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

const transcript = `{"messages":[
  {"id":"1","role":"user","content":"I feel tired and feverish","timestamp":"2024-05-01T10:00:00Z"},
  {"id":"2","role":"assistant","content":"How long has this lasted?","timestamp":"2024-05-01T10:00:05Z"}
]}`

func TestSummaryDecodedJSON(t *testing.T) {
	gen := &stubGenerator{reply: `{"symptoms":["fatigue","fever"],"possibleConditions":["possible viral infection"],"recommendations":["rest"],"medications":[],"followUpNeeded":true,"urgencyLevel":"low"}`}
	resp := postSummary(setupRouter(gen), transcript)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get(SourceHeader); got != string(summaryParser.Decoded) {
		t.Fatalf("unexpected source header: %q", got)
	}

	var body summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(body.Summary.Symptoms, []string{"fatigue", "fever"}) {
		t.Fatalf("unexpected symptoms: %v", body.Summary.Symptoms)
	}
	if body.Summary.UrgencyLevel != "low" {
		t.Fatalf("unexpected urgency: %s", body.Summary.UrgencyLevel)
	}
}

func TestSummaryFallbackText(t *testing.T) {
	gen := &stubGenerator{reply: "I could not produce JSON.\nSymptoms:\n- fatigue\n- fever"}
	resp := postSummary(setupRouter(gen), transcript)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get(SourceHeader); got != string(summaryParser.Fallback) {
		t.Fatalf("unexpected source header: %q", got)
	}
	var body summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(body.Summary.Medications, []string{summaryParser.Placeholder}) {
		t.Fatalf("expected placeholder medications, got %v", body.Summary.Medications)
	}
}

func TestSummaryEmptyMessages(t *testing.T) {
	gen := &stubGenerator{reply: "{}"}
	resp := postSummary(setupRouter(gen), `{"messages":[]}`)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if gen.calls != 0 {
		t.Fatalf("expected zero inference calls, got %d", gen.calls)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != chatservice.ErrMessagesRequired.Message {
		t.Fatalf("unexpected error: %v", body)
	}
}

func TestSummaryMessagesNotArray(t *testing.T) {
	resp := postSummary(setupRouter(&stubGenerator{}), `{"messages":"hello"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSummaryInferenceFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("boom")}
	resp := postSummary(setupRouter(gen), transcript)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != chatservice.SummaryFailure {
		t.Fatalf("unexpected error: %v", body)
	}
}

func TestSummarySchema(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/summary/schema", nil)
	resp := httptest.NewRecorder()
	setupRouter(&stubGenerator{}).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["properties"]; !ok {
		t.Fatalf("schema missing properties: %v", body)
	}
}
