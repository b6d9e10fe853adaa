package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vidtrack/internal/domain"
)

var upgrader = websocket.Upgrader{}

func eventsServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
	}))
}

func collect(t *testing.T, ch *Channel) []domain.StreamEvent {
	t.Helper()
	var out []domain.StreamEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-ch.Events():
			if !ok {
				return out
			}
			out = append(out, event)
		case <-timeout:
			t.Fatal("timed out waiting for stream to end")
		}
	}
}

func TestOpenEventsDeliversTypedEvents(t *testing.T) {
	srv := eventsServer(t, []string{
		`{"type":"shot_start","shot_number":1}`,
		`{"type":"progress","shot_number":1,"progress":55}`,
		`{"type":"shot_complete","shot_number":1}`,
		`{"type":"complete","result":{"sequence_id":"seq-1","shots":[{"shot_number":1,"video_url":"https://cdn/1.mp4"}]}}`,
	})
	defer srv.Close()

	client, err := NewClient(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ch, err := client.OpenEvents(context.Background(), "t1")
	if err != nil {
		t.Fatalf("OpenEvents: %v", err)
	}

	events := collect(t, ch)
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	if e, ok := events[1].(domain.ProgressEvent); !ok || e.Progress != 55 {
		t.Fatalf("event 1 = %#v, want progress 55", events[1])
	}
	done, ok := events[3].(domain.CompleteEvent)
	if !ok {
		t.Fatalf("event 3 = %#v, want complete", events[3])
	}
	if done.Result.SequenceID != "seq-1" || len(done.Result.Shots) != 1 {
		t.Fatalf("result = %+v", done.Result)
	}
}

func TestOpenEventsMalformedFrameEndsStream(t *testing.T) {
	srv := eventsServer(t, []string{
		`{"type":"progress","shot_number":1,"progress":10}`,
		`not json`,
		`{"type":"progress","shot_number":1,"progress":20}`,
	})
	defer srv.Close()

	client, err := NewClient(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ch, err := client.OpenEvents(context.Background(), "t1")
	if err != nil {
		t.Fatalf("OpenEvents: %v", err)
	}

	events := collect(t, ch)
	if len(events) != 1 {
		t.Fatalf("events = %d, want stream cut after the first frame", len(events))
	}
}

func TestOpenEventsSendsBearerToken(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	client, err := NewClient(Options{BaseURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ch, err := client.OpenEvents(context.Background(), "t1")
	if err != nil {
		t.Fatalf("OpenEvents: %v", err)
	}
	defer ch.Close()

	if header := <-got; header != "Bearer secret" {
		t.Fatalf("authorization = %q", header)
	}
}

func TestOpenEventsContextCancelClosesStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client, err := NewClient(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ch, err := client.OpenEvents(ctx, "t1")
	if err != nil {
		t.Fatalf("OpenEvents: %v", err)
	}

	cancel()
	select {
	case _, ok := <-ch.Events():
		if ok {
			t.Fatal("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}

func TestTaskStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v1/tasks/missing/status":
			http.NotFound(w, r)
		case "/v1/tasks/pending/status":
			json.NewEncoder(w).Encode(Status{Status: "pending"})
		case "/v1/tasks/running/status":
			json.NewEncoder(w).Encode(Status{Status: "running", Progress: 62})
		case "/v1/tasks/done/status":
			json.NewEncoder(w).Encode(Status{
				Status: "completed",
				Result: &domain.GenerationResult{SequenceID: "seq-1"},
			})
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client, err := NewClient(Options{BaseURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx := context.Background()

	if _, err := client.TaskStatus(ctx, "missing"); !errors.Is(err, domain.ErrStatusNotReady) {
		t.Fatalf("missing = %v, want ErrStatusNotReady", err)
	}
	if _, err := client.TaskStatus(ctx, "pending"); !errors.Is(err, domain.ErrStatusNotReady) {
		t.Fatalf("pending = %v, want ErrStatusNotReady", err)
	}

	status, err := client.TaskStatus(ctx, "running")
	if err != nil {
		t.Fatalf("running: %v", err)
	}
	if status.Terminal() || status.Progress != 62 {
		t.Fatalf("running status = %+v", status)
	}

	status, err = client.TaskStatus(ctx, "done")
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if !status.Terminal() || status.Result == nil || status.Result.SequenceID != "seq-1" {
		t.Fatalf("done status = %+v", status)
	}

	if _, err := client.TaskStatus(ctx, "broken"); err == nil {
		t.Fatal("expected error for http 500")
	}
}
