package starter

import (
	"os"
	"testing"

	"github.com/rcc-msu/dimmon/pkg/kernel"
	"github.com/rcc-msu/dimmon/pkg/modules/sensor/dummy"
	"github.com/rcc-msu/dimmon/pkg/modules/sink/recorder"
)

func newTestRuntime(t *testing.T) *kernel.Runtime {
	t.Helper()
	rt, err := kernel.New(kernel.Options{Registry: kernel.GlobalRegistry})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return rt
}

const testSpec = `
[[node]]
name = "d"
type = "sensor/dummy"

[[node]]
name = "s"
type = "sink/recorder"

[[hook]]
src_node = "d"
src_hook = "out"
dst_node = "s"
dst_hook = "in"
`

func TestStarterBuildsPipelineFromRemainder(t *testing.T) {
	rt := newTestRuntime(t)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	if _, err := w.WriteString(testSpec); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	w.Close()

	// The starter is the first node created in this runtime, so the nodes
	// it creates from the remainder get the next sequential ids: "d" is 2,
	// "s" is 3. There is no exported way to resolve a starter's internal
	// name table from outside the package.
	n, err := rt.CreateNode(TypeName)
	if err != nil {
		t.Fatalf("create starter: %v", err)
	}
	if n.ID() != 1 {
		t.Fatalf("expected starter to be the first node, got id %d", n.ID())
	}

	msg := kernel.NewMessage(n.ID(), kernel.CmdStartup, kernel.TypeGeneric, 0, 0,
		kernel.StartupPayload{FD: int(r.Fd()), LineNo: 1})
	if err := rt.SendToID(n.ID(), msg); err != nil {
		t.Fatalf("send startup: %v", err)
	}
	r.Close()

	d, err := rt.NodeByID(2)
	if err != nil {
		t.Fatalf("expected node 2 (d) to exist: %v", err)
	}
	s, err := rt.NodeByID(3)
	if err != nil {
		t.Fatalf("expected node 3 (s) to exist: %v", err)
	}
	if d.Type().Name != dummy.TypeName {
		t.Fatalf("expected node 2 to be a dummy sensor, got %s", d.Type().Name)
	}
	if s.Type().Name != recorder.TypeName {
		t.Fatalf("expected node 3 to be a recorder sink, got %s", s.Type().Name)
	}

	trigger := kernel.NewMessage(d.ID(), kernel.CmdTimerTrigger, kernel.TypeGeneric, 0, 0, kernel.TimerTriggerPayload{})
	if err := rt.SendToID(d.ID(), trigger); err != nil {
		t.Fatalf("trigger dummy: %v", err)
	}

	records, err := recorder.Records(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected the starter-built hook to deliver one record, got %d", len(records))
	}
}
