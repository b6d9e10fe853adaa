package handlers_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"vidtrack/internal/domain"
	"vidtrack/internal/http/handlers"
	"vidtrack/internal/http/httpapi"
	"vidtrack/internal/infra"
	"vidtrack/internal/jobstore"
	"vidtrack/internal/library"
	"vidtrack/internal/notify"
	"vidtrack/internal/reconcile"
	"vidtrack/internal/storage"
	"vidtrack/internal/track"
	"vidtrack/internal/upstream"
)

var testUpgrader = websocket.Upgrader{}

// memAssets is an in-memory stand-in for the postgres asset repository.
type memAssets struct {
	mu      sync.Mutex
	inserts int
	assets  map[string]map[int]domain.LibraryAsset
}

func newMemAssets() *memAssets {
	return &memAssets{assets: make(map[string]map[int]domain.LibraryAsset)}
}

func (m *memAssets) Insert(_ context.Context, asset domain.LibraryAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	byShot, ok := m.assets[asset.TaskID]
	if !ok {
		byShot = make(map[int]domain.LibraryAsset)
		m.assets[asset.TaskID] = byShot
	}
	byShot[asset.ShotNumber] = asset
	return nil
}

func (m *memAssets) ListByTask(_ context.Context, taskID string) ([]domain.LibraryAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LibraryAsset
	for shot := 1; shot <= domain.MaxShots; shot++ {
		if a, ok := m.assets[taskID][shot]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAssets) insertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}

type testEnv struct {
	api     *httptest.Server
	jobs    *jobstore.Store
	tracker *track.Tracker
	assets  *memAssets
}

// newTestEnv wires the full engine against a scripted upstream server.
func newTestEnv(t *testing.T, upstreamURL string) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	jobs := jobstore.New(jobstore.NewMemoryPersister(), jobstore.Options{}, logger)
	client, err := upstream.NewClient(upstream.Options{BaseURL: upstreamURL})
	if err != nil {
		t.Fatalf("upstream client: %v", err)
	}
	fileStore, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	assets := newMemAssets()
	saver := library.NewSaver(fileStore, assets, http.DefaultClient, logger)
	center := notify.NewCenter()
	reconciler := reconcile.New(jobs, saver, center, logger)
	tracker := track.New(track.NewUpstream(client), jobs, reconciler, track.Options{
		PollInterval:   5 * time.Millisecond,
		SilenceTimeout: 50 * time.Millisecond,
	}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = tracker.Shutdown(ctx)
	})

	app := &handlers.App{
		Jobs:       jobs,
		Tracker:    tracker,
		Reconciler: reconciler,
		Library:    saver,
		Center:     center,
		Projector:  notify.NewProjector(center, jobs),
		Logger:     logger,
	}
	cfg := &infra.Config{DefaultLocale: "en", RateLimitPerMin: 1000}
	api := httptest.NewServer(httpapi.NewRouter(app, cfg, logger))
	t.Cleanup(api.Close)

	return &testEnv{api: api, jobs: jobs, tracker: tracker, assets: assets}
}

func (e *testEnv) do(t *testing.T, method, path string, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.api.URL+path, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// scriptedUpstream serves the websocket event stream, the status endpoint,
// and the artifact CDN from one server.
func scriptedUpstream(t *testing.T, events func(taskID string, conn *websocket.Conn), status func(taskID string, call int) (int, string)) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	statusCalls := make(map[string]int)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tasks/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
		switch {
		case strings.HasSuffix(rest, "/events"):
			taskID := strings.TrimSuffix(rest, "/events")
			conn, err := testUpgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			if events != nil {
				events(taskID, conn)
			}
		case strings.HasSuffix(rest, "/status"):
			taskID := strings.TrimSuffix(rest, "/status")
			mu.Lock()
			statusCalls[taskID]++
			call := statusCalls[taskID]
			mu.Unlock()
			code, body := status(taskID, call)
			w.WriteHeader(code)
			io.WriteString(w, body)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/cdn/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "video-bytes:"+r.URL.Path)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeFrames(t *testing.T, conn *websocket.Conn, frames ...string) {
	t.Helper()
	for _, frame := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return
		}
	}
}

func TestTwoShotTaskStreamsToCompletion(t *testing.T) {
	var up *httptest.Server
	up = scriptedUpstream(t, func(taskID string, conn *websocket.Conn) {
		result := map[string]any{
			"sequence_id": "seq-1",
			"shots": []map[string]any{
				{"shot_number": 1, "video_url": up.URL + "/cdn/seq-1/1.mp4"},
				{"shot_number": 2, "video_url": up.URL + "/cdn/seq-1/2.mp4"},
			},
		}
		resultJSON, _ := json.Marshal(map[string]any{"type": "complete", "result": result})
		writeFrames(t, conn,
			`{"type":"shot_start","shot_number":1}`,
			`{"type":"progress","shot_number":1,"progress":50}`,
			`{"type":"shot_complete","shot_number":1}`,
			`{"type":"shot_start","shot_number":2}`,
			`{"type":"progress","shot_number":2,"progress":80}`,
			`{"type":"shot_complete","shot_number":2}`,
			string(resultJSON),
		)
	}, func(string, int) (int, string) {
		return http.StatusNotFound, ""
	})

	env := newTestEnv(t, up.URL)

	resp, body := env.do(t, http.MethodPost, "/v1/jobs", `{"task_id":"t1","shots":[{"number":1},{"number":2}]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("track status = %d, body %s", resp.StatusCode, body)
	}

	waitFor(t, func() bool {
		job, ok := env.jobs.Get("t1")
		return ok && job.Status == domain.JobStatusCompleted
	})
	waitFor(t, func() bool { return env.assets.insertCount() == 2 })

	job, _ := env.jobs.Get("t1")
	if job.Progress[1] != 100 || job.Progress[2] != 100 {
		t.Fatalf("progress = %v, want both shots at 100", job.Progress)
	}
	if job.Result == nil || job.Result.SequenceID != "seq-1" {
		t.Fatalf("result = %+v", job.Result)
	}
	if env.assets.insertCount() != 2 {
		t.Fatalf("asset inserts = %d, want exactly 2", env.assets.insertCount())
	}

	resp, body = env.do(t, http.MethodGet, "/v1/notifications", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("notifications status = %d", resp.StatusCode)
	}
	var feed struct {
		Items  []domain.Notification `json:"items"`
		Unread int                   `json:"unread"`
	}
	if err := json.Unmarshal(body, &feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if len(feed.Items) != 1 || feed.Items[0].Kind != domain.NotificationCompleted {
		t.Fatalf("feed = %+v, want one completed item", feed.Items)
	}
	if feed.Unread != 1 {
		t.Fatalf("unread = %d, want 1", feed.Unread)
	}

	resp, body = env.do(t, http.MethodGet, "/v1/jobs/t1/archive", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("archive status = %d", resp.StatusCode)
	}
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("zip entries = %d, want 2", len(zr.File))
	}
}

func TestImmediateDisconnectFallsBackToPollingThenFails(t *testing.T) {
	up := scriptedUpstream(t, func(taskID string, conn *websocket.Conn) {
		// Close without a single event.
	}, func(taskID string, call int) (int, string) {
		if call <= 3 {
			return http.StatusNotFound, ""
		}
		return http.StatusOK, `{"status":"error","error":"upstream exploded"}`
	})

	env := newTestEnv(t, up.URL)

	resp, body := env.do(t, http.MethodPost, "/v1/jobs", `{"task_id":"t2","shots":[{"number":1}]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("track status = %d, body %s", resp.StatusCode, body)
	}

	waitFor(t, func() bool {
		job, ok := env.jobs.Get("t2")
		return ok && job.Status == domain.JobStatusError
	})

	job, _ := env.jobs.Get("t2")
	if job.Error != "upstream exploded" {
		t.Fatalf("error = %q", job.Error)
	}
	if env.assets.insertCount() != 0 {
		t.Fatalf("asset inserts = %d, want 0 for a failed task", env.assets.insertCount())
	}

	_, feedBody := env.do(t, http.MethodGet, "/v1/notifications", "")
	var feed struct {
		Items []domain.Notification `json:"items"`
	}
	if err := json.Unmarshal(feedBody, &feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if len(feed.Items) != 1 || feed.Items[0].Kind != domain.NotificationFailed {
		t.Fatalf("feed = %+v, want one failed item", feed.Items)
	}
	if feed.Items[0].Priority != domain.PriorityHigh {
		t.Fatalf("priority = %s, want high", feed.Items[0].Priority)
	}
}

func TestTrackValidation(t *testing.T) {
	up := scriptedUpstream(t, nil, func(string, int) (int, string) {
		return http.StatusNotFound, ""
	})
	env := newTestEnv(t, up.URL)

	resp, _ := env.do(t, http.MethodPost, "/v1/jobs", `{"shots":[{"number":1}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing task_id = %d, want 400", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/v1/jobs", `{"task_id":"t1","shots":[]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty shots = %d, want 400", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/v1/jobs",
		`{"task_id":"t1","shots":[{"number":1},{"number":2},{"number":3},{"number":4}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("too many shots = %d, want 400", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/v1/jobs", `{"task_id":"t1","shots":[{"number":1}]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("valid = %d, want 201", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/v1/jobs", `{"task_id":"t1","shots":[{"number":1}]}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate = %d, want 409", resp.StatusCode)
	}
}

func TestJobLifecycleEndpoints(t *testing.T) {
	up := scriptedUpstream(t, nil, func(string, int) (int, string) {
		return http.StatusNotFound, ""
	})
	env := newTestEnv(t, up.URL)

	env.do(t, http.MethodPost, "/v1/jobs", `{"task_id":"t1","shots":[{"number":1}]}`)

	resp, body := env.do(t, http.MethodGet, "/v1/jobs", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list = %d", resp.StatusCode)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &list); err != nil || list.Count != 1 {
		t.Fatalf("list body = %s (err %v)", body, err)
	}

	resp, _ = env.do(t, http.MethodGet, "/v1/jobs/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get unknown = %d, want 404", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodDelete, "/v1/jobs/t1", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete = %d, want 204", resp.StatusCode)
	}
	if env.tracker.IsTracking("t1") {
		t.Fatal("tracker still active after delete")
	}
	resp, _ = env.do(t, http.MethodDelete, "/v1/jobs/t1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete = %d, want 404", resp.StatusCode)
	}
}

func TestRetrySaveEndpointStates(t *testing.T) {
	up := scriptedUpstream(t, nil, func(string, int) (int, string) {
		return http.StatusNotFound, ""
	})
	env := newTestEnv(t, up.URL)

	resp, _ := env.do(t, http.MethodPost, "/v1/jobs/ghost/save", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown task = %d, want 404", resp.StatusCode)
	}

	env.do(t, http.MethodPost, "/v1/jobs", `{"task_id":"t1","shots":[{"number":1}]}`)
	resp, _ = env.do(t, http.MethodPost, "/v1/jobs/t1/save", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("running task = %d, want 409", resp.StatusCode)
	}
}

func TestNotificationLocaleHeader(t *testing.T) {
	up := scriptedUpstream(t, func(taskID string, conn *websocket.Conn) {
		writeFrames(t, conn, `{"type":"error","error":"kuota habis"}`)
	}, func(string, int) (int, string) {
		return http.StatusNotFound, ""
	})
	env := newTestEnv(t, up.URL)

	env.do(t, http.MethodPost, "/v1/jobs", `{"task_id":"t1","shots":[{"number":1}]}`)
	waitFor(t, func() bool {
		job, ok := env.jobs.Get("t1")
		return ok && job.Status == domain.JobStatusError
	})

	req, _ := http.NewRequest(http.MethodGet, env.api.URL+"/v1/notifications", nil)
	req.Header.Set("X-Locale", "id")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	var feed struct {
		Items []domain.Notification `json:"items"`
	}
	if err := json.Unmarshal(data, &feed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(feed.Items) != 1 || feed.Items[0].Title != "Pembuatan Gagal" {
		t.Fatalf("items = %+v, want localized failure title", feed.Items)
	}
}

func TestNotificationMarkRead(t *testing.T) {
	up := scriptedUpstream(t, func(taskID string, conn *websocket.Conn) {
		writeFrames(t, conn, `{"type":"error","error":"boom"}`)
	}, func(string, int) (int, string) {
		return http.StatusNotFound, ""
	})
	env := newTestEnv(t, up.URL)

	env.do(t, http.MethodPost, "/v1/jobs", `{"task_id":"t1","shots":[{"number":1}]}`)
	waitFor(t, func() bool {
		job, ok := env.jobs.Get("t1")
		return ok && job.Status == domain.JobStatusError
	})

	_, body := env.do(t, http.MethodGet, "/v1/notifications", "")
	var feed struct {
		Items  []domain.Notification `json:"items"`
		Unread int                   `json:"unread"`
	}
	if err := json.Unmarshal(body, &feed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if feed.Unread != 1 {
		t.Fatalf("unread = %d, want 1", feed.Unread)
	}

	resp, _ := env.do(t, http.MethodPost, "/v1/notifications/"+feed.Items[0].ID+"/read", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mark read = %d, want 204", resp.StatusCode)
	}

	_, body = env.do(t, http.MethodGet, "/v1/notifications", "")
	if err := json.Unmarshal(body, &feed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if feed.Unread != 0 {
		t.Fatalf("unread after mark = %d, want 0", feed.Unread)
	}

	resp, _ = env.do(t, http.MethodPost, "/v1/notifications/ghost/read", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id = %d, want 404", resp.StatusCode)
	}
}

func TestClearTerminal(t *testing.T) {
	up := scriptedUpstream(t, func(taskID string, conn *websocket.Conn) {
		writeFrames(t, conn, `{"type":"error","error":"boom"}`)
	}, func(string, int) (int, string) {
		return http.StatusNotFound, ""
	})
	env := newTestEnv(t, up.URL)

	env.do(t, http.MethodPost, "/v1/jobs", `{"task_id":"t1","shots":[{"number":1}]}`)
	waitFor(t, func() bool {
		job, ok := env.jobs.Get("t1")
		return ok && job.Status == domain.JobStatusError
	})

	resp, body := env.do(t, http.MethodPost, "/v1/jobs/clear-terminal", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear = %d", resp.StatusCode)
	}
	var out struct {
		Cleared int `json:"cleared"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Cleared != 1 {
		t.Fatalf("cleared body = %s (err %v)", body, err)
	}
	if _, ok := env.jobs.Get("t1"); ok {
		t.Fatal("terminal job still present after clear")
	}
}
