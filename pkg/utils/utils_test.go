package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusBadRequest, "bad input")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "bad input" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSendSSEChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)
	SendSSEChunk(rec, rec, map[string]string{"event": "delta"})

	if got := rec.Body.String(); got != "data: {\"event\":\"delta\"}\n\n" {
		t.Fatalf("unexpected sse frame: %q", got)
	}
	if !rec.Flushed {
		t.Fatal("expected flush after chunk")
	}
}

func TestDecodeJSONRejectsOversizedBody(t *testing.T) {
	body := `{"message":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()

	var dst map[string]string
	if err := DecodeJSON(rec, req, &dst); err == nil {
		t.Fatal("expected error for oversized body")
	}
}
