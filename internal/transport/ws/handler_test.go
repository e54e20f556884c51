package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/usecase/chat"
)

type fakeChatService struct {
	events []chat.Event
	panics bool
}

func (f *fakeChatService) StreamTurn(_ context.Context, _, _ string) <-chan chat.Event {
	if f.panics {
		panic("pipeline exploded")
	}
	ch := make(chan chat.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch
}

type fakeSender struct {
	frames  []any
	failAll bool
}

func (f *fakeSender) send(v any) bool {
	if f.failAll {
		return false
	}
	f.frames = append(f.frames, v)
	return true
}

func frameTypes(frames []any) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		switch v := f.(type) {
		case StreamStart:
			out = append(out, v.Type)
		case StreamToken:
			out = append(out, v.Type)
		case StreamSources:
			out = append(out, v.Type)
		case StreamEnd:
			out = append(out, v.Type)
		case StreamError:
			out = append(out, v.Type)
		}
	}
	return out
}

func msg(content string) ClientMessage {
	return ClientMessage{Type: "message", MessageID: "m1", Content: content, SessionID: "s1"}
}

func TestRunTurn_SuccessSequence(t *testing.T) {
	svc := &fakeChatService{events: []chat.Event{
		{Type: chat.EventMetadata, Metadata: map[string]any{"documents_found": 2}},
		{Type: chat.EventChunk, Chunk: "안녕"},
		{Type: chat.EventChunk, Chunk: "하세요"},
		{Type: chat.EventChunk, Chunk: "!"},
		{Type: chat.EventDone, Sources: []map[string]any{{"id": "d1"}}},
	}}
	snd := &fakeSender{}

	runTurn(context.Background(), svc, snd, msg("질문"), zap.NewNop())

	got := frameTypes(snd.frames)
	want := []string{TypeStreamStart, TypeStreamToken, TypeStreamToken, TypeStreamToken, TypeStreamSources, TypeStreamEnd}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected frame sequence: %v", got)
	}

	// metadata is log-only, never a frame
	for i, frame := range snd.frames {
		tok, ok := frame.(StreamToken)
		if !ok {
			continue
		}
		if tok.Index != i-1 {
			t.Errorf("token indexes must be 0-based and dense: frame %d has index %d", i, tok.Index)
		}
	}
	if tok := snd.frames[1].(StreamToken); tok.Token != "안녕" {
		t.Errorf("multi-byte token mangled: %q", tok.Token)
	}

	end := snd.frames[len(snd.frames)-1].(StreamEnd)
	if end.TotalTokens != 3 {
		t.Errorf("total_tokens must equal tokens sent, got %d", end.TotalTokens)
	}
	if end.ProcessingTimeMS < 0 {
		t.Errorf("negative processing time: %d", end.ProcessingTimeMS)
	}

	start := snd.frames[0].(StreamStart)
	if _, err := time.Parse(time.RFC3339, start.Timestamp); err != nil {
		t.Errorf("stream_start timestamp not RFC3339: %v", err)
	}
	if start.SessionID != "s1" || start.MessageID != "m1" {
		t.Errorf("unexpected stream_start: %+v", start)
	}
}

func TestRunTurn_PipelineErrorForwardedVerbatim(t *testing.T) {
	svc := &fakeChatService{events: []chat.Event{
		{Type: chat.EventChunk, Chunk: "partial"},
		{Type: chat.EventError, Code: chat.CodeGenerationFailed, Message: "quota", Solutions: []string{"top up"}},
	}}
	snd := &fakeSender{}

	runTurn(context.Background(), svc, snd, msg("q"), zap.NewNop())

	got := frameTypes(snd.frames)
	want := []string{TypeStreamStart, TypeStreamToken, TypeStreamError}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected frame sequence: %v", got)
	}

	se := snd.frames[2].(StreamError)
	if se.ErrorCode != chat.CodeGenerationFailed || len(se.Solutions) != 1 {
		t.Errorf("pipeline error must pass through verbatim: %+v", se)
	}
}

func TestRunTurn_PanicAnsweredWithInternalError(t *testing.T) {
	snd := &fakeSender{}
	runTurn(context.Background(), &fakeChatService{panics: true}, snd, msg("q"), zap.NewNop())

	last := snd.frames[len(snd.frames)-1]
	se, ok := last.(StreamError)
	if !ok || se.ErrorCode != CodeInternalError {
		t.Errorf("expected internal error frame, got %+v", last)
	}
	if len(se.Solutions) == 0 {
		t.Error("error frame must carry at least one solution")
	}
}

func TestRunTurn_DeadConnectionDrainsQuietly(t *testing.T) {
	svc := &fakeChatService{events: []chat.Event{
		{Type: chat.EventChunk, Chunk: "a"},
		{Type: chat.EventDone},
	}}
	snd := &fakeSender{failAll: true}

	done := make(chan struct{})
	go func() {
		runTurn(context.Background(), svc, snd, msg("q"), zap.NewNop())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("turn did not drain after connection loss")
	}
	if len(snd.frames) != 0 {
		t.Errorf("dead connection must receive nothing, got %v", snd.frames)
	}
}

func TestClientMessage_Validate(t *testing.T) {
	tests := []struct {
		name  string
		msg   ClientMessage
		valid bool
	}{
		{"valid", msg("hello"), true},
		{"empty content", msg(""), false},
		{"max length", msg(strings.Repeat("a", 10000)), true},
		{"over max length", msg(strings.Repeat("a", 10001)), false},
		{"multi-byte counted in chars", msg(strings.Repeat("한", 10000)), true},
		{"wrong type", ClientMessage{Type: "ping", Content: "hello"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func newTestServer(t *testing.T, svc ChatService) *httptest.Server {
	t.Helper()
	h := NewHandler(svc, NewRegistry(nil), nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHandler_MissingSessionIDRejectedBeforeUpgrade(t *testing.T) {
	srv := newTestServer(t, &fakeChatService{})

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandler_EmptyContentSingleErrorNoStart(t *testing.T) {
	srv := newTestServer(t, &fakeChatService{events: []chat.Event{{Type: chat.EventDone}}})
	c := dial(t, srv, "?session_id=s1")

	if err := c.WriteJSON(ClientMessage{Type: "message", MessageID: "m1", Content: ""}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var frame map[string]any
	if err := c.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame["type"] != TypeStreamError || frame["error_code"] != CodeValidationError {
		t.Errorf("expected validation stream_error, got %v", frame)
	}

	// connection stays open: a valid message still works
	if err := c.WriteJSON(ClientMessage{Type: "message", MessageID: "m2", Content: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame["type"] != TypeStreamStart {
		t.Errorf("expected stream_start after recovery, got %v", frame)
	}
}

func TestHandler_InvalidJSONStaysOpen(t *testing.T) {
	srv := newTestServer(t, &fakeChatService{})
	c := dial(t, srv, "?session_id=s1")

	if err := c.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var frame map[string]any
	if err := c.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame["error_code"] != CodeInvalidJSON {
		t.Errorf("expected invalid json error, got %v", frame)
	}
}

func TestHandler_NilServiceAnswersNotInitialized(t *testing.T) {
	srv := newTestServer(t, nil)
	c := dial(t, srv, "?session_id=s1")

	if err := c.WriteJSON(ClientMessage{Type: "message", Content: "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var frame map[string]any
	if err := c.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame["error_code"] != CodeServiceNotInitialized {
		t.Errorf("expected service not initialized, got %v", frame)
	}
}

func TestHandler_EndToEndTurn(t *testing.T) {
	svc := &fakeChatService{events: []chat.Event{
		{Type: chat.EventChunk, Chunk: "hello"},
		{Type: chat.EventDone, Sources: []map[string]any{{"id": "d1"}}},
	}}
	srv := newTestServer(t, svc)
	c := dial(t, srv, "?session_id=s1")

	if err := c.WriteJSON(ClientMessage{Type: "message", MessageID: "m1", Content: "question"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var types []string
	for i := 0; i < 4; i++ {
		var frame map[string]any
		if err := c.ReadJSON(&frame); err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		types = append(types, frame["type"].(string))
	}
	want := []string{TypeStreamStart, TypeStreamToken, TypeStreamSources, TypeStreamEnd}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected sequence: %v", types)
	}
}
