// Package wire implements the fixed-size packet header framing shared by
// the client-server and server-to-server connections: eight 32-bit fields
// in network byte order, with an optional body following for COMMAND,
// DATA, and ERROR packets. Grounded on the header layout in
// original_source's connection_sr.c, expressed here with encoding/binary
// rather than a protobuf/gob dependency since this is a fixed, tiny,
// wire-exact struct the rest of the example pack has no precedent for
// codec-generating.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PacketType enumerates the header's type field.
type PacketType uint32

const (
	Command PacketType = iota + 1
	Data
	Abort
	Close
	Error
	Magic
)

func (t PacketType) String() string {
	switch t {
	case Command:
		return "COMMAND"
	case Data:
		return "DATA"
	case Abort:
		return "ABORT"
	case Close:
		return "CLOSE"
	case Error:
		return "ERROR"
	case Magic:
		return "MAGIC"
	default:
		return "UNKNOWN"
	}
}

// HeaderSize is the on-wire size of a Header: eight 32-bit fields.
const HeaderSize = 8 * 4

// Header is the fixed eight-field packet header.
type Header struct {
	Type          PacketType
	FunctionCode  uint32
	RequestID     uint16
	TransactionID uint32
	DBError       uint32
	BufferSize    uint32
	NodeID        uint32
	reserved      uint32
}

// HasBody reports whether this header's type carries a following body of
// BufferSize bytes. CLOSE headers never carry a body.
func (h Header) HasBody() bool {
	switch h.Type {
	case Command, Data, Error:
		return h.BufferSize > 0
	default:
		return false
	}
}

// Encode writes the header in network byte order.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:], uint32(h.Type))
	binary.BigEndian.PutUint32(buf[4:], h.FunctionCode)
	binary.BigEndian.PutUint32(buf[8:], uint32(h.RequestID))
	binary.BigEndian.PutUint32(buf[12:], h.TransactionID)
	binary.BigEndian.PutUint32(buf[16:], h.DBError)
	binary.BigEndian.PutUint32(buf[20:], h.BufferSize)
	binary.BigEndian.PutUint32(buf[24:], h.NodeID)
	binary.BigEndian.PutUint32(buf[28:], h.reserved)
	return buf
}

// DecodeHeader parses a HeaderSize-byte buffer into a Header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("wire: short header: got %d bytes, need %d", len(buf), HeaderSize)
	}
	return Header{
		Type:          PacketType(binary.BigEndian.Uint32(buf[0:])),
		FunctionCode:  binary.BigEndian.Uint32(buf[4:]),
		RequestID:     uint16(binary.BigEndian.Uint32(buf[8:])),
		TransactionID: binary.BigEndian.Uint32(buf[12:]),
		DBError:       binary.BigEndian.Uint32(buf[16:]),
		BufferSize:    binary.BigEndian.Uint32(buf[20:]),
		NodeID:        binary.BigEndian.Uint32(buf[24:]),
		reserved:      binary.BigEndian.Uint32(buf[28:]),
	}, nil
}

// ReadPacket reads one header, and its body if HasBody reports true, from r.
func ReadPacket(r io.Reader) (Header, []byte, error) {
	hbuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hbuf); err != nil {
		return Header{}, nil, fmt.Errorf("wire: read header: %w", err)
	}
	h, err := DecodeHeader(hbuf)
	if err != nil {
		return Header{}, nil, err
	}
	if !h.HasBody() {
		return h, nil, nil
	}
	body := make([]byte, h.BufferSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return Header{}, nil, fmt.Errorf("wire: read body: %w", err)
	}
	return h, body, nil
}

// WritePacket writes header then body (if any) to w.
func WritePacket(w io.Writer, h Header, body []byte) error {
	h.BufferSize = uint32(len(body))
	if _, err := w.Write(h.Encode()); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("wire: write body: %w", err)
		}
	}
	return nil
}

// MagicPayload is the literal payload every new server-to-server
// connection's first packet must carry.
var MagicPayload = []byte("XQE_S2S_MAGIC\x00")
