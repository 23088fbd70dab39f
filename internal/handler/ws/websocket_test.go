package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/medichat/backend/internal/analysis/emergency"
	chatservice "github.com/zhouzirui/medichat/backend/internal/service/chat"
	"github.com/zhouzirui/medichat/backend/internal/service/inference"
)

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) string
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string, _ inference.Params) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.reply(prompt), nil
}

func dial(t *testing.T, gen *recordingGenerator) *websocket.Conn {
	t.Helper()
	return dialHandler(t, New(chatservice.NewService(gen, chatservice.Options{}), nil))
}

func dialHandler(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, in inboundMessage) outgoingMessage {
	t.Helper()
	if err := conn.WriteJSON(in); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out outgoingMessage
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("read: %v", err)
	}
	return out
}

func TestRepliesArriveInSubmissionOrder(t *testing.T) {
	gen := &recordingGenerator{reply: func(p string) string {
		if strings.Contains(p, "first") {
			return "reply one"
		}
		return "reply two"
	}}
	conn := dial(t, gen)

	for _, in := range []inboundMessage{
		{Type: TypeChat, ID: "1", Message: "first: mild cough"},
		{Type: TypeChat, ID: "2", Message: "second: still coughing"},
	} {
		if err := conn.WriteJSON(in); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	want := []struct{ id, text string }{{"1", "reply one"}, {"2", "reply two"}}
	for _, w := range want {
		var out outgoingMessage
		if err := conn.ReadJSON(&out); err != nil {
			t.Fatalf("read: %v", err)
		}
		if out.Type != TypeReply || out.ID != w.id || out.Response != w.text {
			t.Fatalf("unexpected reply: %+v", out)
		}
	}

	if len(gen.prompts) != 2 || !strings.Contains(gen.prompts[1], "Patient: first: mild cough") {
		t.Fatalf("expected second prompt to carry the socket transcript, got %q", gen.prompts)
	}
}

func TestEmergencyOverSocket(t *testing.T) {
	gen := &recordingGenerator{reply: func(string) string { return "unused" }}
	conn := dial(t, gen)

	out := roundTrip(t, conn, inboundMessage{Type: TypeChat, ID: "e", Message: "He is unconscious"})
	if !out.Emergency || out.Response != emergency.EmergencyResponse {
		t.Fatalf("unexpected emergency reply: %+v", out)
	}
	if len(gen.prompts) != 0 {
		t.Fatalf("expected no inference calls, got %d", len(gen.prompts))
	}
}

func TestSummaryUsesSocketTranscript(t *testing.T) {
	gen := &recordingGenerator{reply: func(p string) string {
		if strings.Contains(p, "CONVERSATION:") {
			return `{"symptoms":["cough"],"urgencyLevel":"low","followUpNeeded":false}`
		}
		return "Drink fluids."
	}}
	conn := dial(t, gen)

	roundTrip(t, conn, inboundMessage{Type: TypeChat, ID: "1", Message: "I have a cough"})
	out := roundTrip(t, conn, inboundMessage{Type: TypeSummary, ID: "s"})

	if out.Type != TypeSummary || out.Summary == nil {
		t.Fatalf("unexpected summary message: %+v", out)
	}
	if out.Source != "decoded" || out.Summary.UrgencyLevel != "low" || out.Summary.Symptoms[0] != "cough" {
		t.Fatalf("unexpected summary: %+v", out.Summary)
	}
}

func TestSocketErrors(t *testing.T) {
	gen := &recordingGenerator{reply: func(string) string { return "" }}
	conn := dial(t, gen)

	out := roundTrip(t, conn, inboundMessage{Type: "bogus", ID: "x"})
	if out.Type != TypeError || !strings.Contains(out.Error, "unsupported") {
		t.Fatalf("unexpected error frame: %+v", out)
	}

	out = roundTrip(t, conn, inboundMessage{Type: TypeSummary, ID: "empty"})
	if out.Type != TypeError || out.Error != chatservice.ErrMessagesRequired.Message {
		t.Fatalf("unexpected validation frame: %+v", out)
	}
}

func TestSlowTurnKeepsConnectionOpen(t *testing.T) {
	gen := &recordingGenerator{reply: func(string) string {
		time.Sleep(150 * time.Millisecond)
		return "Take it easy."
	}}
	h := New(chatservice.NewService(gen, chatservice.Options{}), nil)
	h.readTimeout = 50 * time.Millisecond
	h.pingInterval = 40 * time.Millisecond
	conn := dialHandler(t, h)

	for _, id := range []string{"1", "2"} {
		out := roundTrip(t, conn, inboundMessage{Type: TypeChat, ID: id, Message: "my back aches"})
		if out.Type != TypeReply || out.ID != id || out.Response != "Take it easy." {
			t.Fatalf("turn %s: unexpected frame %+v", id, out)
		}
	}
}

func TestFramesWithoutIDGetOne(t *testing.T) {
	gen := &recordingGenerator{reply: func(string) string { return "Drink water." }}
	conn := dial(t, gen)

	out := roundTrip(t, conn, inboundMessage{Type: TypeChat, Message: "I feel thirsty"})
	if out.Type != TypeReply {
		t.Fatalf("unexpected frame: %+v", out)
	}
	if _, err := uuid.Parse(out.ID); err != nil {
		t.Fatalf("expected generated uuid id, got %q", out.ID)
	}
}
