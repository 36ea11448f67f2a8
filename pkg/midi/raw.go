package midi

import "fmt"

// RawEvent is the wire-level representation of a MIDI message: a frame
// offset within the current processing cycle and the raw status+data
// bytes exactly as read from (or to be written to) a device. The hub
// deals exclusively in RawEvent; typed Event values are produced from it
// on demand via Decode.
type RawEvent struct {
	Device string
	Frame  uint32
	Data   []byte
}

func NewRawEvent(device string, frame uint32, data []byte) RawEvent {
	buf := make([]byte, len(data))
	copy(buf, data)
	return RawEvent{Device: device, Frame: frame, Data: buf}
}

func (e RawEvent) String() string {
	return fmt.Sprintf("RawEvent{device:%q, frame:%d, bytes:% X}", e.Device, e.Frame, e.Data)
}

// Decoded resolves the event to a typed Event using the same status-byte
// table as Decode. ok is false for messages this engine doesn't decompose
// (SysEx, realtime bytes it doesn't model as typed events, short reads).
func (e RawEvent) Decoded() (Event, bool) {
	return Decode(int32(e.Frame), e.Data)
}
