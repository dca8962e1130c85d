package main

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newWsTestServer(t *testing.T, jobs []Job) (*Hub, *websocket.Conn) {
	t.Helper()

	if err := InitLogFile(t.TempDir()); err != nil {
		t.Fatalf("InitLogFile: %v", err)
	}

	hub, err := NewHub()
	if err != nil {
		t.Fatalf("NewHub: %v", err)
	}

	queue, err := NewQueue(jobs, hub)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	hub.SetOnConnect(func() interface{} {
		return WsQueueUpdate{
			WsBaseMessage: WsBaseMessage{Type: "queue_update"},
			Jobs:          queue.GetJobs(),
		}
	})
	go hub.Run()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", hub.HandleConnections)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()

	var msg map[string]json.RawMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func messageType(t *testing.T, msg map[string]json.RawMessage) string {
	t.Helper()

	var typ string
	if err := json.Unmarshal(msg["type"], &typ); err != nil {
		t.Fatalf("message has no type: %v", err)
	}
	return typ
}

func TestWsSendsQueueSnapshotOnConnect(t *testing.T) {
	_, conn := newWsTestServer(t, []Job{{ID: 4, Path: "in.mkv", OutputPath: "out.mkv"}})

	msg := readMessage(t, conn)
	if typ := messageType(t, msg); typ != "queue_update" {
		t.Fatalf("first message type = %q, want queue_update", typ)
	}

	var jobs []Job
	if err := json.Unmarshal(msg["jobs"], &jobs); err != nil {
		t.Fatalf("unmarshal jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != 4 {
		t.Fatalf("snapshot jobs = %+v", jobs)
	}
}

func TestWsBroadcastReachesClient(t *testing.T) {
	hub, conn := newWsTestServer(t, nil)

	// The snapshot arrives first and proves registration finished, so the
	// broadcast below cannot race the register channel.
	if typ := messageType(t, readMessage(t, conn)); typ != "queue_update" {
		t.Fatalf("expected queue snapshot first, got %q", typ)
	}

	hub.BroadcastMessage(WsWorkerProgress{
		WsBaseMessage: WsBaseMessage{Type: "worker_progress"},
		WorkerID:      "worker_0",
		JobID:         9,
		Step:          "extracting frames",
		Progress:      0.5,
	})

	msg := readMessage(t, conn)
	if typ := messageType(t, msg); typ != "worker_progress" {
		t.Fatalf("broadcast message type = %q, want worker_progress", typ)
	}

	var jobID int64
	if err := json.Unmarshal(msg["jobId"], &jobID); err != nil {
		t.Fatalf("unmarshal jobId: %v", err)
	}
	if jobID != 9 {
		t.Fatalf("jobId = %d, want 9", jobID)
	}
}
