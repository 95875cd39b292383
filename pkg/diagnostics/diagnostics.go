// Package diagnostics is a one-way NDJSON trace bridge: the main loop
// publishes a small event per wave (PublishWave) to every connected
// Unix-socket consumer, tagged with the wave's trace id so an
// external tool can correlate a burst of log lines back to the single
// stimulus that caused them. Adapted from pkg/warehouse's event bridge
// (warehouse -> web process), reworked for the kernel's wave-shaped
// traffic instead of storage block events.
package diagnostics

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"

	"github.com/rcc-msu/dimmon/pkg/log"
)

// Event is one NDJSON line published to every connected consumer.
type Event struct {
	Type    string    `json:"type"`
	Wave    uint64    `json:"wave,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
	Node    string    `json:"node,omitempty"`
	Time    time.Time `json:"time"`
	Message string    `json:"message,omitempty"`
}

// Bridge is a best-effort, non-blocking publisher listening on a Unix
// domain socket. Construct it with New (a zero Bridge has no socket path
// and no stop channel); Start must be called before Publish has any
// effect.
type Bridge struct {
	path     string
	compress bool
	log      *log.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]io.Writer

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	running   bool
}

// New constructs a Bridge listening at path. When compress is true, each
// connection's NDJSON stream is wrapped in a flate writer instead of sent
// raw — a real diagnostics socket is chatty enough (one line per wave)
// that a busy pipeline benefits from not paying full JSON bandwidth.
func New(path string, compress bool) *Bridge {
	return &Bridge{
		path:     path,
		compress: compress,
		log:      log.ForService("diagnostics"),
		conns:    make(map[net.Conn]io.Writer),
		stopCh:   make(chan struct{}),
	}
}

// Start opens the listening socket and begins accepting consumers. Safe
// to call multiple times; only the first call has effect.
func (b *Bridge) Start() error {
	var err error
	b.startOnce.Do(func() {
		if b.path == "" {
			err = errors.New("diagnostics: bridge path is empty")
			return
		}
		if st, statErr := os.Stat(b.path); statErr == nil && !st.IsDir() {
			_ = os.Remove(b.path)
		}
		ln, listenErr := net.Listen("unix", b.path)
		if listenErr != nil {
			err = listenErr
			return
		}
		b.ln = ln
		b.running = true
		go b.acceptLoop()
	})
	return err
}

func (b *Bridge) acceptLoop() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			select {
			case <-b.stopCh:
				return
			default:
				return
			}
		}
		var w io.Writer = conn
		if b.compress {
			w = flate.NewWriter(conn, flate.DefaultCompression)
		}
		b.mu.Lock()
		b.conns[conn] = w
		b.mu.Unlock()
		go b.drain(conn)
	}
}

// drain ignores inbound bytes (the protocol is one-way) and removes the
// connection once the consumer disconnects.
func (b *Bridge) drain(c net.Conn) {
	sc := bufio.NewScanner(c)
	for sc.Scan() {
	}
	b.mu.Lock()
	delete(b.conns, c)
	b.mu.Unlock()
	_ = c.Close()
}

// Publish marshals evt as one NDJSON line and best-effort writes it to
// every connected consumer. Never blocks the caller on a slow consumer
// beyond the flush of one line; write failures silently drop the
// connection.
func (b *Bridge) Publish(evt Event) {
	if !b.running {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		b.log.Warnf("marshal event: %v", err)
		return
	}
	data = append(data, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()
	for c, w := range b.conns {
		_ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if _, werr := w.Write(data); werr != nil {
			_ = c.Close()
			delete(b.conns, c)
			continue
		}
		if fw, ok := w.(*flate.Writer); ok {
			_ = fw.Flush()
		}
		_ = c.SetWriteDeadline(time.Time{})
	}
}

// PublishWave is a convenience wrapper building a "wave" Event from a
// wave id and its trace id.
func (b *Bridge) PublishWave(wave uint64, trace uuid.UUID, message string) {
	b.Publish(Event{Type: "wave", Wave: wave, TraceID: trace.String(), Time: time.Now(), Message: message})
}

// Stop closes the listener and all connections, removing the socket
// file. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		if b.ln != nil {
			_ = b.ln.Close()
		}
		b.mu.Lock()
		for c, w := range b.conns {
			if fw, ok := w.(*flate.Writer); ok {
				_ = fw.Close()
			}
			_ = c.Close()
		}
		b.conns = make(map[net.Conn]io.Writer)
		b.mu.Unlock()
		if b.path != "" {
			_ = os.Remove(b.path)
		}
		b.running = false
	})
}
