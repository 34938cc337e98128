package peerwire

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestWriteReadFrameRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	params, _ := json.Marshal(HelloParams{Token: "tok", PeerAddress: "1.2.3.4:9000"})
	req := &Request{ID: 7, Method: MethodHello, Params: params}

	if err := WriteFrame(&buf, req); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	gotReq, gotResp, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if gotResp != nil {
		t.Fatal("expected nil response for a request frame")
	}
	if gotReq.ID != 7 || gotReq.Method != MethodHello {
		t.Fatalf("got %+v", gotReq)
	}

	var params2 HelloParams
	if err := json.Unmarshal(gotReq.Params, &params2); err != nil {
		t.Fatalf("Unmarshal params: %v", err)
	}
	if params2.Token != "tok" {
		t.Fatalf("Token = %q", params2.Token)
	}
}

func TestWriteReadFrameResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	resp := &Response{ID: 3, Error: "auth failed"}

	if err := WriteFrame(&buf, resp); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	gotReq, gotResp, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if gotReq != nil {
		t.Fatal("expected nil request for a response frame")
	}
	if gotResp.ID != 3 || gotResp.Error != "auth failed" {
		t.Fatalf("got %+v", gotResp)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{0xFF, 0xFF, 0xFF, 0xFF} // ~4 GiB claimed length
	buf.Write(header)

	if _, _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected oversized frame to be rejected")
	}
}
