// Package qr encodes and decodes the structured payload embedded in a
// guest's QR code. The bitmap itself is rendered by an external service;
// this codec performs no I/O.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

type PayloadType string

const (
	TypeAccessInvitation PayloadType = "access-invitation"
	TypeVisitorInfo      PayloadType = "visitor-info"
	TypeVisitCheckIn     PayloadType = "visit-checkin"
)

type Payload struct {
	Type       PayloadType `json:"type"`
	AccessID   int64       `json:"accessId"`
	AccessCode string      `json:"accessCode"`
	GuestName  string      `json:"guestName"`
	GuestEmail string      `json:"guestEmail"`
	EventName  string      `json:"eventName"`
	EventDate  time.Time   `json:"eventDate"`
	Location   string      `json:"location,omitempty"`
	HostName   string      `json:"hostName,omitempty"`
}

// Encode serializes a payload to the base64url string handed to the
// bitmap renderer and embedded in invitation emails.
func Encode(p Payload) (string, error) {
	if err := validate(p); err != nil {
		return "", err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a scanned payload and validates its type tag and
// required fields.
func Decode(encoded string) (Payload, error) {
	var p Payload
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return p, fmt.Errorf("payload is not valid base64url: %w", err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if err := validate(p); err != nil {
		return p, err
	}
	return p, nil
}

func validate(p Payload) error {
	switch p.Type {
	case TypeAccessInvitation, TypeVisitorInfo, TypeVisitCheckIn:
	default:
		return fmt.Errorf("unknown payload type %q", p.Type)
	}
	if p.AccessCode == "" {
		return fmt.Errorf("payload is missing accessCode")
	}
	if p.GuestName == "" && p.GuestEmail == "" {
		return fmt.Errorf("payload identifies no guest")
	}
	return nil
}
