package transport

import (
	"net"
	"testing"
)

func TestBinaryConnReadWriteRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientConn := WrapBinary(client)
	serverConn := WrapBinary(server)

	frame := BinaryFrame{Type: 4, Payload: []byte("hello mumble")}
	done := make(chan error, 1)
	go func() {
		done <- clientConn.WriteFrame(frame)
	}()

	got, err := serverConn.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if got.Type != frame.Type || string(got.Payload) != string(frame.Payload) {
		t.Fatalf("ReadFrame = %+v, want %+v", got, frame)
	}
}

func TestBinaryConnRejectsOversizedFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	serverConn := WrapBinary(server)

	go func() {
		header := []byte{0, 1, 0xFF, 0xFF, 0xFF, 0xFF}
		client.Write(header)
	}()

	if _, err := serverConn.ReadFrame(); err == nil {
		t.Fatal("expected error for oversized frame length")
	}
}

func TestUvarintRoundTrip(t *testing.T) {
	buf := make([]byte, 10)
	n := PutUvarint(buf, 300)
	got, m := Uvarint(buf[:n])
	if got != 300 || m != n {
		t.Fatalf("Uvarint round trip = (%d, %d), want (300, %d)", got, m, n)
	}
}
