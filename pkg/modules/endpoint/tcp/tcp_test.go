package tcp

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rcc-msu/dimmon/pkg/kernel"
)

type fakePoller struct {
	added map[int]kernel.SockEventMask
}

func newFakePoller() *fakePoller { return &fakePoller{added: make(map[int]kernel.SockEventMask)} }

func (p *fakePoller) Add(fd int, events kernel.SockEventMask) error {
	p.added[fd] = events
	return nil
}
func (p *fakePoller) Modify(fd int, events kernel.SockEventMask) error {
	p.added[fd] = events
	return nil
}
func (p *fakePoller) Remove(fd int) error {
	delete(p.added, fd)
	return nil
}
func (p *fakePoller) Wait(timeout time.Duration) ([]kernel.ReadyFD, error) { return nil, nil }
func (p *fakePoller) Close() error                                           { return nil }

func newTestRuntime(t *testing.T) *kernel.Runtime {
	t.Helper()
	rt, err := kernel.New(kernel.Options{Registry: kernel.GlobalRegistry, Poller: newFakePoller()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return rt
}

func tcpPipe(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	acceptCh := make(chan *net.TCPConn, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := ln.AcceptTCP()
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- c
	}()

	client, err := net.DialTCP("tcp", nil, ln.Addr().(*net.TCPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	select {
	case server := <-acceptCh:
		return client, server
	case err := <-errCh:
		t.Fatalf("accept: %v", err)
	}
	return nil, nil
}

func TestTCPAttachConnSubscribesSockEvent(t *testing.T) {
	rt := newTestRuntime(t)
	client, server := tcpPipe(t)
	defer client.Close()
	defer server.Close()

	n, err := rt.CreateNode(TypeName)
	if err != nil {
		t.Fatalf("create tcp node: %v", err)
	}
	if _, err := rt.CreateHook(n, "out", kernel.HookOut); err != nil {
		t.Fatalf("create out hook: %v", err)
	}

	if err := AttachConn(n, server); err != nil {
		t.Fatalf("attach conn: %v", err)
	}

	if err := kernel.EncodeFrame(client, mustFrame(t, kernel.Datanode{Sensor: 3, Payload: []byte("hi")})); err != nil {
		t.Fatalf("encode frame to client side: %v", err)
	}

	msg := kernel.NewMessage(n.ID(), kernel.CmdSockEventTrigger, kernel.TypeGeneric, 0, 0,
		kernel.SockEventTriggerPayload{FD: 0, Events: kernel.SockEventIn})
	if err := rt.SendToID(n.ID(), msg); err != nil {
		t.Fatalf("trigger sockevent: %v", err)
	}
}

func mustFrame(t *testing.T, nodes ...kernel.Datanode) *kernel.Frame {
	t.Helper()
	f, err := kernel.NewFrame(nodes...)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	return f
}

func TestTCPRejectsRcvDataWithNoConnection(t *testing.T) {
	rt := newTestRuntime(t)
	n, err := rt.CreateNode(TypeName)
	if err != nil {
		t.Fatalf("create tcp node: %v", err)
	}
	in, err := rt.CreateHook(n, "in", kernel.HookIn)
	if err != nil {
		t.Fatalf("create in hook: %v", err)
	}

	frame := mustFrame(t, kernel.Datanode{Sensor: 1, Payload: []byte("x")})
	err = rcvData(n, in, frame)
	if err == nil {
		t.Fatalf("expected error delivering to a tcp node with no connection attached")
	}
	if !errors.Is(err, kernel.ENotConnected) {
		t.Fatalf("expected ENotConnected, got %v", err)
	}
}
