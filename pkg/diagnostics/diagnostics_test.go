package diagnostics

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBridgePublishesWaveEventToConnectedConsumer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dimmon.sock")
	b := New(path, false)
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer b.Stop()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the accept loop a moment to register the connection.
	time.Sleep(20 * time.Millisecond)

	trace := uuid.New()
	b.PublishWave(7, trace, "wave finished")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatalf("expected a line, read error: %v", scanner.Err())
	}
	var evt Event
	if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Type != "wave" || evt.Wave != 7 || evt.TraceID != trace.String() {
		t.Fatalf("unexpected event: %+v", evt)
	}
}
