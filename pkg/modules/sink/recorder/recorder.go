// Package recorder implements a sink node type that records every frame
// it receives instead of discarding it, for tests and introspection.
// Grounded on modules/blackhole/blackhole.c, whose "discard on receipt"
// becomes "record then acknowledge" here.
package recorder

import (
	"fmt"

	"github.com/rcc-msu/dimmon/pkg/kernel"
)

const TypeName = "sink/recorder"

// Record is a defensive copy of one received frame's datanodes, excluding
// the terminator.
type Record struct {
	Sensor  []kernel.SensorID
	Payload [][]byte
}

type private struct {
	records []Record
}

func init() {
	if err := kernel.GlobalRegistry.Register(&kernel.NodeType{
		Name:    TypeName,
		Ctor:    ctor,
		RcvData: rcvData,
		NewHook: newHook,
	}); err != nil {
		panic(fmt.Sprintf("registering %s: %v", TypeName, err))
	}
}

func ctor(n *kernel.Node) (kernel.Private, error) {
	return &private{}, nil
}

func newHook(n *kernel.Node, name string, dir kernel.HookDir) error {
	if dir == kernel.HookOut {
		return fmt.Errorf("recorder newhook: %w", kernel.EInvalid)
	}
	return nil
}

func rcvData(n *kernel.Node, h *kernel.Hook, f *kernel.Frame) error {
	p := n.Private().(*private)
	rec := Record{}
	for _, dn := range f.Nodes {
		if dn.Sensor == 0 {
			break
		}
		rec.Sensor = append(rec.Sensor, dn.Sensor)
		payload := make([]byte, len(dn.Payload))
		copy(payload, dn.Payload)
		rec.Payload = append(rec.Payload, payload)
	}
	p.records = append(p.records, rec)
	return nil
}

// Records returns every frame recorder has recorded on n so far, in
// receipt order. n must be a recorder node.
func Records(n *kernel.Node) ([]Record, error) {
	p, ok := n.Private().(*private)
	if !ok {
		return nil, fmt.Errorf("records: not a %s node", TypeName)
	}
	return p.records, nil
}
