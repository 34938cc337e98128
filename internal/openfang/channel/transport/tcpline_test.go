package transport

import (
	"net"
	"testing"
)

func TestLineConnReadWriteRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientLine := WrapLine(client)
	serverLine := WrapLine(server)

	done := make(chan error, 1)
	go func() {
		done <- clientLine.WriteLine("PING :12345")
	}()

	got, err := serverLine.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if got != "PING :12345" {
		t.Fatalf("ReadLine = %q, want %q", got, "PING :12345")
	}
}
