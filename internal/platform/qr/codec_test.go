package qr_test

import (
	"testing"
	"time"

	"github.com/porteria/visitor-access/internal/platform/qr"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	eventDate := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	in := qr.Payload{
		Type:       qr.TypeAccessInvitation,
		AccessID:   42,
		AccessCode: "AC-7f3b",
		GuestName:  "Maria Lopez",
		GuestEmail: "maria@example.com",
		EventName:  "Quarterly review",
		EventDate:  eventDate,
		Location:   "Sala 3",
		HostName:   "Pedro",
	}

	encoded, err := qr.Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	out, err := qr.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if out.Type != in.Type || out.AccessID != in.AccessID || out.AccessCode != in.AccessCode {
		t.Fatalf("identity fields mismatch: %+v", out)
	}
	if out.GuestEmail != in.GuestEmail || out.GuestName != in.GuestName {
		t.Fatalf("guest fields mismatch: %+v", out)
	}
	if !out.EventDate.Equal(eventDate) {
		t.Fatalf("event date mismatch: %v", out.EventDate)
	}
}

func TestEncode_RejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload qr.Payload
	}{
		{"unknown type", qr.Payload{Type: "raffle-ticket", AccessCode: "x", GuestName: "a"}},
		{"missing access code", qr.Payload{Type: qr.TypeVisitCheckIn, GuestName: "a"}},
		{"no guest identity", qr.Payload{Type: qr.TypeVisitorInfo, AccessCode: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := qr.Encode(tt.payload); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "!!!not-base64!!!", "bm90IGpzb24"} {
		if _, err := qr.Decode(input); err == nil {
			t.Fatalf("expected an error for %q", input)
		}
	}
}
