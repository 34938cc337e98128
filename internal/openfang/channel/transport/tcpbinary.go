package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// BinaryFrame is one header+payload unit of a length-prefixed binary
// protocol: a 2-byte big-endian type, a 4-byte big-endian length, then the
// payload (Mumble's wire format).
type BinaryFrame struct {
	Type    uint16
	Payload []byte
}

// BinaryConn wraps a TCP connection (plain from DialBinary, or TLS via
// WrapBinary) speaking 6-byte-header framed binary messages.
type BinaryConn struct {
	conn net.Conn
}

// DialBinary opens network/addr for a binary framed protocol.
func DialBinary(network, addr string, timeout time.Duration) (*BinaryConn, error) {
	conn, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("tcpbinary: dial %s: %w", addr, err)
	}
	return &BinaryConn{conn: conn}, nil
}

// WrapBinary builds a BinaryConn around an already-established net.Conn
// (e.g. a *tls.Conn after the handshake).
func WrapBinary(conn net.Conn) *BinaryConn {
	return &BinaryConn{conn: conn}
}

const maxBinaryPayload = 8 * 1024 * 1024

// ReadFrame reads one type+length+payload frame.
func (c *BinaryConn) ReadFrame() (BinaryFrame, error) {
	var header [6]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return BinaryFrame{}, err
	}
	msgType := binary.BigEndian.Uint16(header[0:2])
	length := binary.BigEndian.Uint32(header[2:6])
	if length > maxBinaryPayload {
		return BinaryFrame{}, fmt.Errorf("tcpbinary: frame length %d exceeds max %d", length, maxBinaryPayload)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return BinaryFrame{}, err
	}
	return BinaryFrame{Type: msgType, Payload: payload}, nil
}

// WriteFrame writes one type+length+payload frame.
func (c *BinaryConn) WriteFrame(f BinaryFrame) error {
	header := make([]byte, 6, 6+len(f.Payload))
	binary.BigEndian.PutUint16(header[0:2], f.Type)
	binary.BigEndian.PutUint32(header[2:6], uint32(len(f.Payload)))
	header = append(header, f.Payload...)
	_, err := c.conn.Write(header)
	return err
}

// SetDeadline forwards to the underlying connection.
func (c *BinaryConn) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// Close closes the underlying connection.
func (c *BinaryConn) Close() error { return c.conn.Close() }

// PutUvarint encodes a protobuf-style base-128 varint, used by Mumble's
// minimal protobuf-lite field encoding.
func PutUvarint(buf []byte, v uint64) int {
	return binary.PutUvarint(buf, v)
}

// Uvarint decodes a protobuf-style base-128 varint.
func Uvarint(buf []byte) (uint64, int) {
	return binary.Uvarint(buf)
}
