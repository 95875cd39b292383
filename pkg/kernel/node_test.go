package kernel

import (
	"testing"
	"time"
)

func newTestRuntime(t *testing.T) (*Runtime, *Registry) {
	t.Helper()
	reg := NewRegistry()
	rt, err := New(Options{
		Registry: reg,
		Clock:    &fakeClock{now: time.Unix(0, 0)},
		Poller:   newFakePoller(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return rt, reg
}

func registerEchoType(t *testing.T, reg *Registry, name string, received *[]*Frame) {
	t.Helper()
	err := reg.Register(&NodeType{
		Name: name,
		RcvData: func(n *Node, h *Hook, f *Frame) error {
			*received = append(*received, f)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
}

func TestRegistryRejectsDuplicateAndOverlongNames(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&NodeType{Name: "dup"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(&NodeType{Name: "dup"}); err == nil {
		t.Fatalf("expected error registering duplicate type name")
	}
	long := make([]byte, MaxTypeName+1)
	if err := reg.Register(&NodeType{Name: string(long)}); err == nil {
		t.Fatalf("expected error registering overlong type name")
	}
}

func TestCreateNodeUnknownType(t *testing.T) {
	rt, _ := newTestRuntime(t)
	if _, err := rt.CreateNode("nope"); err == nil {
		t.Fatalf("expected error creating node of unregistered type")
	}
}

func TestSourceToSinkFanOut(t *testing.T) {
	rt, reg := newTestRuntime(t)

	var received []*Frame
	if err := reg.Register(&NodeType{Name: "source"}); err != nil {
		t.Fatal(err)
	}
	registerEchoType(t, reg, "sink", &received)

	src, err := rt.CreateNode("source")
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	sinkA, err := rt.CreateNode("sink")
	if err != nil {
		t.Fatalf("create sink a: %v", err)
	}
	sinkB, err := rt.CreateNode("sink")
	if err != nil {
		t.Fatalf("create sink b: %v", err)
	}

	out, err := rt.CreateHook(src, "out", HookOut)
	if err != nil {
		t.Fatalf("create out hook: %v", err)
	}
	inA, err := rt.CreateHook(sinkA, "in", HookIn)
	if err != nil {
		t.Fatalf("create in hook a: %v", err)
	}
	inB, err := rt.CreateHook(sinkB, "in", HookIn)
	if err != nil {
		t.Fatalf("create in hook b: %v", err)
	}
	if err := rt.Connect(out, inA); err != nil {
		t.Fatalf("connect a: %v", err)
	}
	if err := rt.Connect(out, inB); err != nil {
		t.Fatalf("connect b: %v", err)
	}

	frame, err := NewFrame(Datanode{Sensor: 42, Payload: []byte("hi")})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	if err := rt.Send(out, frame); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(received) != 2 {
		t.Fatalf("expected 2 deliveries (fan-out), got %d", len(received))
	}
	for _, f := range received {
		if f.Len() != 1 || f.Nodes[0].Sensor != 42 {
			t.Fatalf("unexpected frame contents: %+v", f.Nodes)
		}
	}
}

func TestSendOnDisconnectedHookReturnsNotConnected(t *testing.T) {
	rt, reg := newTestRuntime(t)
	if err := reg.Register(&NodeType{Name: "source"}); err != nil {
		t.Fatal(err)
	}
	src, _ := rt.CreateNode("source")
	out, err := rt.CreateHook(src, "out", HookOut)
	if err != nil {
		t.Fatalf("create out: %v", err)
	}
	frame, _ := NewFrame(Datanode{Sensor: 1, Payload: nil})
	if err := rt.Send(out, frame); err == nil {
		t.Fatalf("expected ENotConnected sending on disconnected hook")
	}
}

func TestRemoveNodeTearsDownHooksAndPeers(t *testing.T) {
	rt, reg := newTestRuntime(t)
	if err := reg.Register(&NodeType{Name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(&NodeType{Name: "b"}); err != nil {
		t.Fatal(err)
	}
	a, _ := rt.CreateNode("a")
	b, _ := rt.CreateNode("b")
	out, _ := rt.CreateHook(a, "out", HookOut)
	in, _ := rt.CreateHook(b, "in", HookIn)
	if err := rt.Connect(out, in); err != nil {
		t.Fatal(err)
	}
	if err := rt.RemoveNode(a); err != nil {
		t.Fatalf("remove a: %v", err)
	}
	if a.IsValid() {
		t.Fatalf("expected a invalid after removal")
	}
	if in.IsConnected() {
		t.Fatalf("expected b's in-hook disconnected after peer node removal")
	}
	if _, err := rt.NodeByID(a.ID()); err == nil {
		t.Fatalf("expected lookup of removed node to fail")
	}
}

func TestSetNameRejectsCollision(t *testing.T) {
	rt, reg := newTestRuntime(t)
	if err := reg.Register(&NodeType{Name: "t"}); err != nil {
		t.Fatal(err)
	}
	a, _ := rt.CreateNode("t")
	b, _ := rt.CreateNode("t")
	if err := rt.SetName(a, "one"); err != nil {
		t.Fatalf("set name a: %v", err)
	}
	if err := rt.SetName(b, "one"); err == nil {
		t.Fatalf("expected collision error naming b same as a")
	}
	if n, err := rt.NodeByName("one"); err != nil || n != a {
		t.Fatalf("lookup by name failed: %v", err)
	}
}
