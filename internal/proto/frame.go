package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// Frame types exchanged between a node and the broadcast hub
const (
	FrameTypeHello     = 1
	FrameTypeAdvertise = 2
	FrameTypeStop      = 3
	FrameTypeScan      = 4
	FrameTypeAck       = 5
	FrameTypeError     = 6
)

// MaxFrameSize bounds a single encoded frame.
const MaxFrameSize = 64 * 1024

// ErrFrameTooLarge is returned by Decode for oversized length prefixes.
var ErrFrameTooLarge = errors.New("frame too large")

// HelloFrame introduces a node to the hub
type HelloFrame struct {
	NodeID string `json:"node_id"`
}

// AdvertiseFrame replaces the node's current advertisement
type AdvertiseFrame struct {
	ManufacturerCode uint16 `json:"mfg"`
	Data             []byte `json:"data"` // beacon marker + packet
}

// ScanFrame delivers a raw advertisement heard on the medium
type ScanFrame struct {
	Raw  []byte `json:"raw"`
	From string `json:"from,omitempty"`
}

// AckFrame
type AckFrame struct {
	OK bool `json:"ok"`
}

// ErrorFrame
type ErrorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Frame is the top-level wire message
type Frame struct {
	Type      int             `json:"t"`
	Hello     *HelloFrame     `json:"h,omitempty"`
	Advertise *AdvertiseFrame `json:"a,omitempty"`
	Scan      *ScanFrame      `json:"s,omitempty"`
	Ack       *AckFrame       `json:"k,omitempty"`
	Error     *ErrorFrame     `json:"e,omitempty"`
}

// Validate checks that the body matching Type is present and well formed.
func (f *Frame) Validate() error {
	switch f.Type {
	case FrameTypeHello:
		if f.Hello == nil {
			return errors.New("hello frame without body")
		}
	case FrameTypeAdvertise:
		if f.Advertise == nil {
			return errors.New("advertise frame without body")
		}
		if len(f.Advertise.Data) != ManufacturerDataSize {
			return fmt.Errorf("advertise data: got %d bytes, want %d", len(f.Advertise.Data), ManufacturerDataSize)
		}
	case FrameTypeScan:
		if f.Scan == nil || len(f.Scan.Raw) == 0 {
			return errors.New("scan frame without advertisement")
		}
	case FrameTypeStop, FrameTypeAck, FrameTypeError:
	default:
		return fmt.Errorf("unknown frame type %d", f.Type)
	}
	return nil
}

// Encode writes a length-prefixed JSON frame to w
func (f *Frame) Encode(w io.Writer) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	_, err = w.Write(buf)
	return err
}

// Decode reads a length-prefixed JSON frame from r
func (f *Frame) Decode(r io.Reader) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrameSize {
		return ErrFrameTooLarge
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	*f = Frame{}
	return json.Unmarshal(data, f)
}
