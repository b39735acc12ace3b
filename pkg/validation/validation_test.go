package validation

import (
	"testing"
)

func TestValidateEmail(t *testing.T) {
	cases := []struct {
		email   string
		wantErr bool
	}{
		{"user@example.com", false},
		{"first.last+tag@sub.example.org", false},
		{"", true},
		{"not-an-email", true},
		{"missing@tld", true},
	}

	for _, tc := range cases {
		err := ValidateEmail(tc.email)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tc.email, err, tc.wantErr)
		}
	}
}

func TestValidateUsername(t *testing.T) {
	cases := []struct {
		username string
		wantErr  bool
	}{
		{"alice", false},
		{"bob_smith-2", false},
		{"", true},
		{"ab", true},
		{"has spaces", true},
		{"has@symbol", true},
	}

	for _, tc := range cases {
		err := ValidateUsername(tc.username)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateUsername(%q) error = %v, wantErr %v", tc.username, err, tc.wantErr)
		}
	}
}

func TestValidateDocumentID(t *testing.T) {
	cases := []struct {
		id      string
		wantErr bool
	}{
		{"doc-123", false},
		{"a1_b2", false},
		{"", true},
		{"has spaces", true},
		{"has/slash", true},
	}

	for _, tc := range cases {
		err := ValidateDocumentID(tc.id)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateDocumentID(%q) error = %v, wantErr %v", tc.id, err, tc.wantErr)
		}
	}
}

func TestValidateSessionID(t *testing.T) {
	if err := ValidateSessionID("session_abc-123"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateSessionID(""); err == nil {
		t.Error("expected error for empty session ID")
	}
}

func TestValidateDocumentTitle(t *testing.T) {
	if err := ValidateDocumentTitle("Meeting notes"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateDocumentTitle("  "); err == nil {
		t.Error("expected error for blank title")
	}
}

func TestValidateURL(t *testing.T) {
	cases := []struct {
		url     string
		wantErr bool
	}{
		{"http://localhost:8080", false},
		{"wss://gateway.example.com/ws", false},
		{"", true},
		{"ftp://example.com", true},
		{"http://", true},
	}

	for _, tc := range cases {
		err := ValidateURL(tc.url)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tc.url, err, tc.wantErr)
		}
	}
}

func TestValidateStringLength(t *testing.T) {
	if err := ValidateStringLength("abc", 1, 5, "field"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateStringLength("", 1, 5, "field"); err == nil {
		t.Error("expected error for too-short string")
	}
	if err := ValidateStringLength("abcdef", 1, 5, "field"); err == nil {
		t.Error("expected error for too-long string")
	}
}
