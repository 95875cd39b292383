package kernel

import (
	"encoding/binary"
	"fmt"
	"io"
)

// This file implements the §6 wire formats literally, for node types
// (pkg/modules/endpoint/tcp) that carry frames and messages across a
// process boundary. In-process delivery (Send, SendToNode) never touches
// these codecs — Frame and Message are passed by reference within one
// Runtime.

// EncodeFrame writes f in the data-frame wire format: a sequence of
// {u32 sensor_id; u32 length; payload}, big-endian, terminated by a
// {0,0} record.
func EncodeFrame(w io.Writer, f *Frame) error {
	var hdr [8]byte
	for _, n := range f.Nodes {
		binary.BigEndian.PutUint32(hdr[0:4], uint32(n.Sensor))
		binary.BigEndian.PutUint32(hdr[4:8], uint32(len(n.Payload)))
		if _, err := w.Write(hdr[:]); err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}
		if len(n.Payload) > 0 {
			if _, err := w.Write(n.Payload); err != nil {
				return fmt.Errorf("encode frame: %w", err)
			}
		}
		if n.isEnd() {
			return nil
		}
	}
	return fmt.Errorf("encode frame: missing terminator: %w", EInvalid)
}

// DecodeFrame reads a data frame off r until it sees the terminator
// record, matching DMM_DN_ISEND's sensor==0 && len==0 definition.
func DecodeFrame(r io.Reader) (*Frame, error) {
	var hdr [8]byte
	var nodes []Datanode
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		sensor := SensorID(binary.BigEndian.Uint32(hdr[0:4]))
		length := binary.BigEndian.Uint32(hdr[4:8])
		if sensor == 0 && length == 0 {
			nodes = append(nodes, Datanode{})
			return &Frame{Nodes: nodes, refs: 1}, nil
		}
		payload := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(r, payload); err != nil {
				return nil, fmt.Errorf("decode frame: %w", err)
			}
		}
		nodes = append(nodes, Datanode{Sensor: sensor, Payload: payload})
	}
}

// RawMessage is the wire-transportable form of a Message: a byte payload
// instead of an arbitrary Go value, matching struct dmm_msg's flat
// cm_data field.
type RawMessage struct {
	Src     ID
	Cmd     uint32
	Type    uint32
	Token   uint32
	Flags   MsgFlag
	Payload []byte
}

// EncodeMessage writes m in the control-message wire format:
// {u32 src,cmd,type,token,flags,len; payload}, big-endian.
func EncodeMessage(w io.Writer, m RawMessage) error {
	var hdr [24]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(m.Src))
	binary.BigEndian.PutUint32(hdr[4:8], m.Cmd)
	binary.BigEndian.PutUint32(hdr[8:12], m.Type)
	binary.BigEndian.PutUint32(hdr[12:16], m.Token)
	binary.BigEndian.PutUint32(hdr[16:20], uint32(m.Flags))
	binary.BigEndian.PutUint32(hdr[20:24], uint32(len(m.Payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if len(m.Payload) > 0 {
		if _, err := w.Write(m.Payload); err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
	}
	return nil
}

// DecodeMessage reads a control message off r.
func DecodeMessage(r io.Reader) (RawMessage, error) {
	var hdr [24]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return RawMessage{}, fmt.Errorf("decode message: %w", err)
	}
	m := RawMessage{
		Src:   ID(binary.BigEndian.Uint32(hdr[0:4])),
		Cmd:   binary.BigEndian.Uint32(hdr[4:8]),
		Type:  binary.BigEndian.Uint32(hdr[8:12]),
		Token: binary.BigEndian.Uint32(hdr[12:16]),
		Flags: MsgFlag(binary.BigEndian.Uint32(hdr[16:20])),
	}
	length := binary.BigEndian.Uint32(hdr[20:24])
	if length > 0 {
		m.Payload = make([]byte, length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return RawMessage{}, fmt.Errorf("decode message: %w", err)
		}
	}
	return m, nil
}
