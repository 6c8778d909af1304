package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStatusResponseOmitsMissingChallenge(t *testing.T) {
	resp := StatusResponse{
		Session: &SessionView{UserID: "user-1", Tier: "free", HostingType: "shared"},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "challenge") {
		t.Errorf("expected no challenge field, got %s", data)
	}
	if !strings.Contains(string(data), `"user_id":"user-1"`) {
		t.Errorf("expected user_id in %s", data)
	}
}

func TestStatusResponseWithChallenge(t *testing.T) {
	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	resp := StatusResponse{
		Session:   &SessionView{UserID: "user-1"},
		Challenge: &Challenge{Payload: "qr-data", ExpiresAt: expires},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded StatusResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Challenge == nil || decoded.Challenge.Payload != "qr-data" {
		t.Fatalf("expected challenge payload qr-data, got %+v", decoded.Challenge)
	}
	if !decoded.Challenge.ExpiresAt.Equal(expires) {
		t.Errorf("expected expiry %v, got %v", expires, decoded.Challenge.ExpiresAt)
	}
}

func TestSessionViewOmitsZeroTierLimits(t *testing.T) {
	data, err := json.Marshal(SessionView{UserID: "user-1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{"isolation_level", "max_connections"} {
		if strings.Contains(string(data), field) {
			t.Errorf("expected %s to be omitted, got %s", field, data)
		}
	}
}
