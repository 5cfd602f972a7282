package message

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := []Message{
		{Header: HB, Body: ""},
		{Header: ACK, Body: "1"},
		{Header: PUB, Body: `{"key":42}`},
		{Header: MSG, Body: "hello"},
	}

	for _, m := range cases {
		data, err := Encode(m)
		if err != nil {
			t.Fatalf("Encode(%+v): %v", m, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%s): %v", data, err)
		}
		if got != m {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, m)
		}
	}
}

func TestDecodeRejectsUnknownHeader(t *testing.T) {
	_, err := Decode([]byte(`{"header":"BOGUS","body":""}`))
	if err == nil {
		t.Fatal("expected error for unknown header")
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for malformed json")
	}
}

func TestNewAndDecodeBody(t *testing.T) {
	type payload struct {
		Key uint64 `json:"key"`
	}

	m, err := New(PUB, payload{Key: 42})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Header != PUB {
		t.Fatalf("header = %v, want PUB", m.Header)
	}

	var got payload
	if err := DecodeBody(m, &got); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if got.Key != 42 {
		t.Errorf("Key = %d, want 42", got.Key)
	}
}

func TestNewWithStringPayload(t *testing.T) {
	m, err := New(ACK, "1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Body != "1" {
		t.Errorf("Body = %q, want %q", m.Body, "1")
	}
}
