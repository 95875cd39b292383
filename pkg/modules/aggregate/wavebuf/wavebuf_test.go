package wavebuf

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

func TestWavebufMergesBufferedFramesOnWaveFinish(t *testing.T) {
	rt := newTestRuntime(t)

	agg, err := rt.CreateNode(TypeName)
	if err != nil {
		t.Fatalf("create wavebuf: %v", err)
	}
	sink, err := rt.CreateNode(recorder.TypeName)
	if err != nil {
		t.Fatalf("create recorder: %v", err)
	}
	in, err := rt.CreateHook(agg, "in", kernel.HookIn)
	if err != nil {
		t.Fatalf("create in: %v", err)
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
		t.Fatalf("connect out->sink: %v", err)
	}

	src, _ := rt.CreateNode(dummy.TypeName)
	srcOut, _ := rt.CreateHook(src, "out", kernel.HookOut)
	if err := rt.Connect(srcOut, in); err != nil {
		t.Fatalf("connect source->in: %v", err)
	}

	rt.WaveStart()

	f1, _ := kernel.NewFrame(kernel.Datanode{Sensor: 1, Payload: []byte("a")})
	if err := rt.Send(srcOut, f1); err != nil {
		t.Fatalf("send f1: %v", err)
	}
	f2, _ := kernel.NewFrame(kernel.Datanode{Sensor: 2, Payload: []byte("b")})
	if err := rt.Send(srcOut, f2); err != nil {
		t.Fatalf("send f2: %v", err)
	}

	if err := rt.WaveFinish(); err != nil {
		t.Fatalf("wave finish: %v", err)
	}

	records, err := recorder.Records(sink)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one merged record, got %d", len(records))
	}
	if len(records[0].Sensor) != 2 || records[0].Sensor[0] != 1 || records[0].Sensor[1] != 2 {
		t.Fatalf("unexpected merged sensors: %+v", records[0].Sensor)
	}
}

func TestWavebufRejectsSecondOutHook(t *testing.T) {
	rt := newTestRuntime(t)
	n, _ := rt.CreateNode(TypeName)
	if _, err := rt.CreateHook(n, "out", kernel.HookOut); err != nil {
		t.Fatalf("first out hook: %v", err)
	}
	if _, err := rt.CreateHook(n, "wrong", kernel.HookOut); err == nil {
		t.Fatalf("expected error creating a misnamed out-hook")
	}
}
