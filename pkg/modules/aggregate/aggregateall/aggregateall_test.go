package aggregateall

import (
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

func TestAggregateallEmitsLatestPerHookOnTimerTrigger(t *testing.T) {
	rt := newTestRuntime(t)

	agg, err := rt.CreateNode(TypeName)
	if err != nil {
		t.Fatalf("create aggregateall: %v", err)
	}
	sink, err := rt.CreateNode(recorder.TypeName)
	if err != nil {
		t.Fatalf("create recorder: %v", err)
	}
	inA, err := rt.CreateHook(agg, "a", kernel.HookIn)
	if err != nil {
		t.Fatalf("create in a: %v", err)
	}
	inB, err := rt.CreateHook(agg, "b", kernel.HookIn)
	if err != nil {
		t.Fatalf("create in b: %v", err)
	}
	out, err := rt.CreateHook(agg, "out", kernel.HookOut)
	if err != nil {
		t.Fatalf("create out: %v", err)
	}
	sinkIn, err := rt.CreateHook(sink, "in", kernel.HookIn)
	if err != nil {
		t.Fatalf("create sink in: %v", err)
	}
	if err := rt.Connect(out, sinkIn); err != nil {
		t.Fatalf("connect: %v", err)
	}

	srcA, _ := rt.CreateNode(dummy.TypeName)
	srcAOut, _ := rt.CreateHook(srcA, "out", kernel.HookOut)
	if err := rt.Connect(srcAOut, inA); err != nil {
		t.Fatalf("connect source a: %v", err)
	}
	srcB, _ := rt.CreateNode(dummy.TypeName)
	srcBOut, _ := rt.CreateHook(srcB, "out", kernel.HookOut)
	if err := rt.Connect(srcBOut, inB); err != nil {
		t.Fatalf("connect source b: %v", err)
	}

	f1, _ := kernel.NewFrame(kernel.Datanode{Sensor: 1, Payload: []byte("first")}, kernel.Datanode{Sensor: 1, Payload: []byte("latest-a")})
	if err := rt.Send(srcAOut, f1); err != nil {
		t.Fatalf("send to a: %v", err)
	}
	f2, _ := kernel.NewFrame(kernel.Datanode{Sensor: 2, Payload: []byte("latest-b")})
	if err := rt.Send(srcBOut, f2); err != nil {
		t.Fatalf("send to b: %v", err)
	}

	msg := kernel.NewMessage(agg.ID(), kernel.CmdTimerTrigger, kernel.TypeGeneric, 0, 0, kernel.TimerTriggerPayload{})
	if err := rt.SendToID(agg.ID(), msg); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	records, err := recorder.Records(sink)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one emitted record, got %d", len(records))
	}
	if len(records[0].Sensor) != 2 {
		t.Fatalf("expected one datanode per touched hook, got %d", len(records[0].Sensor))
	}

	// A second trigger with no new traffic should emit nothing.
	msg2 := kernel.NewMessage(agg.ID(), kernel.CmdTimerTrigger, kernel.TypeGeneric, 0, 0, kernel.TimerTriggerPayload{})
	if err := rt.SendToID(agg.ID(), msg2); err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	records, err = recorder.Records(sink)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected no additional record from an idle trigger, got %d", len(records))
	}
}

func TestAggregateallRejectsSecondOutHook(t *testing.T) {
	rt := newTestRuntime(t)
	n, _ := rt.CreateNode(TypeName)
	if _, err := rt.CreateHook(n, "out", kernel.HookOut); err != nil {
		t.Fatalf("first out hook: %v", err)
	}
	if _, err := rt.CreateHook(n, "out2", kernel.HookOut); err == nil {
		t.Fatalf("expected error creating a second out-hook")
	}
}
