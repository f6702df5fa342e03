package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"socialpub/internal/broadcast"
	"socialpub/internal/job"
)

func dialStream(t *testing.T, server *httptest.Server, jobID, ownerID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/posts/publish/ws?jobId=" + jobID
	header := http.Header{}
	header.Set("X-User-ID", ownerID)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) broadcast.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f broadcast.Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestStream_LiveFrames(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	server := httptest.NewServer(env.router)
	defer server.Close()

	j := seedJob(t, env, "pub_live", "user1", job.StatusRunning)
	conn := dialStream(t, server, j.ID, "user1")

	snapshot := readFrame(t, conn)
	if snapshot.Type != broadcast.FrameSnapshot || snapshot.Status != job.StatusRunning {
		t.Errorf("snapshot = %+v", snapshot)
	}

	out := job.Outcome{Provider: "facebook", OK: true}
	env.hub.Publish(context.Background(), j.ID, broadcast.Progress(j.ID, out))

	progress := readFrame(t, conn)
	if progress.Type != broadcast.FrameProgress || progress.Provider != "facebook" {
		t.Errorf("progress = %+v", progress)
	}
	if progress.OK == nil || !*progress.OK {
		t.Error("expected ok=true in progress frame")
	}

	j.Status = job.StatusCompleted
	j.Outcomes = map[string]job.Outcome{"facebook": out}
	env.hub.Publish(context.Background(), j.ID, broadcast.Done(j))

	done := readFrame(t, conn)
	if done.Type != broadcast.FrameDone || done.Status != job.StatusCompleted {
		t.Errorf("done = %+v", done)
	}

	// After the done frame the server closes the socket.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the socket to close after the done frame")
	}
}

func TestStream_TerminalJobGetsSnapshotAndCloses(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	server := httptest.NewServer(env.router)
	defer server.Close()

	j := seedJob(t, env, "pub_done", "user1", job.StatusRunning)
	env.store.RecordOutcome(context.Background(), j.ID, "facebook", job.Outcome{Provider: "facebook", OK: true})
	env.store.MarkTerminal(context.Background(), j.ID, job.StatusCompleted)

	conn := dialStream(t, server, j.ID, "user1")

	snapshot := readFrame(t, conn)
	if snapshot.Type != broadcast.FrameSnapshot || snapshot.Status != job.StatusCompleted {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if out := snapshot.Results["facebook"]; !out.OK {
		t.Errorf("results = %v", snapshot.Results)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the socket to close after the terminal snapshot")
	}
}

func TestStream_UnknownJob(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	server := httptest.NewServer(env.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/posts/publish/ws?jobId=pub_missing"
	header := http.Header{}
	header.Set("X-User-ID", "user1")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("expected dial to fail for an unknown job")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %+v", resp)
	}
}

func TestStream_MissingJobID(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	server := httptest.NewServer(env.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/posts/publish/ws"
	header := http.Header{}
	header.Set("X-User-ID", "user1")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("expected dial to fail without jobId")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("response = %+v", resp)
	}
}

func TestStream_OwnerMismatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	server := httptest.NewServer(env.router)
	defer server.Close()

	seedJob(t, env, "pub_owned", "user1", job.StatusRunning)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/posts/publish/ws?jobId=pub_owned"
	header := http.Header{}
	header.Set("X-User-ID", "intruder")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("expected dial to fail for another owner's job")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %+v", resp)
	}
}
