package prepend

import (
	"encoding/binary"
	"testing"
	"time"

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

func TestPrependAddrModePrependsSourceNodeID(t *testing.T) {
	rt := newTestRuntime(t)

	src, _ := rt.CreateNode(dummy.TypeName)
	mid, err := rt.CreateNode(TypeName)
	if err != nil {
		t.Fatalf("create prepend: %v", err)
	}
	sink, _ := rt.CreateNode(recorder.TypeName)

	srcOut, _ := rt.CreateHook(src, "out", kernel.HookOut)
	midIn, _ := rt.CreateHook(mid, "in", kernel.HookIn)
	midOut, _ := rt.CreateHook(mid, "out", kernel.HookOut)
	sinkIn, _ := rt.CreateHook(sink, "in", kernel.HookIn)

	if err := rt.Connect(srcOut, midIn); err != nil {
		t.Fatalf("connect src->mid: %v", err)
	}
	if err := rt.Connect(midOut, sinkIn); err != nil {
		t.Fatalf("connect mid->sink: %v", err)
	}

	frame, _ := kernel.NewFrame(kernel.Datanode{Sensor: 9, Payload: []byte("x")})
	if err := rt.Send(srcOut, frame); err != nil {
		t.Fatalf("send: %v", err)
	}

	records, err := recorder.Records(sink)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || len(records[0].Sensor) != 2 {
		t.Fatalf("expected one record with a prepended datanode, got %+v", records)
	}
	if records[0].Sensor[0] != 1 {
		t.Fatalf("expected prepended datanode to use the default sensor id 1, got %d", records[0].Sensor[0])
	}
	got := binary.BigEndian.Uint64(records[0].Payload[0])
	if kernel.ID(got) != src.ID() {
		t.Fatalf("expected prepended payload to carry src node id %d, got %d", src.ID(), got)
	}
	if records[0].Sensor[1] != 9 {
		t.Fatalf("expected the original datanode to follow, got sensor %d", records[0].Sensor[1])
	}
}

func TestPrependTimestampModePrependsClockTime(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Clock = fakeClock{now: time.Unix(123, 0)}

	src, _ := rt.CreateNode(dummy.TypeName)
	mid, err := rt.CreateNode(TypeName)
	if err != nil {
		t.Fatalf("create prepend: %v", err)
	}
	if err := Configure(mid, ModeTimestamp, 5); err != nil {
		t.Fatalf("configure: %v", err)
	}
	sink, _ := rt.CreateNode(recorder.TypeName)

	srcOut, _ := rt.CreateHook(src, "out", kernel.HookOut)
	midIn, _ := rt.CreateHook(mid, "in", kernel.HookIn)
	midOut, _ := rt.CreateHook(mid, "out", kernel.HookOut)
	sinkIn, _ := rt.CreateHook(sink, "in", kernel.HookIn)
	if err := rt.Connect(srcOut, midIn); err != nil {
		t.Fatal(err)
	}
	if err := rt.Connect(midOut, sinkIn); err != nil {
		t.Fatal(err)
	}

	frame, _ := kernel.NewFrame(kernel.Datanode{Sensor: 9, Payload: []byte("x")})
	if err := rt.Send(srcOut, frame); err != nil {
		t.Fatalf("send: %v", err)
	}

	records, err := recorder.Records(sink)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || len(records[0].Sensor) != 2 || records[0].Sensor[0] != 5 {
		t.Fatalf("unexpected records: %+v", records)
	}
	got := binary.BigEndian.Uint64(records[0].Payload[0])
	if int64(got) != time.Unix(123, 0).UnixNano() {
		t.Fatalf("expected prepended payload to carry the fake clock time, got %d", got)
	}
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }
