package steamtotp

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateAuthCode(t *testing.T) {
	// Test vectors generated using the same algorithm as node-steam-totp.
	// Shared secret (base64): "t9MKLkm2D2GIG7bABTxjH7JIF/k="
	// Shared secret (hex): "b7d30a2e49b60f61881bb6c0053c631fb24817f9"

	base64Secret := "t9MKLkm2D2GIG7bABTxjH7JIF/k="
	hexSecret := "b7d30a2e49b60f61881bb6c0053c631fb24817f9"

	tests := []struct {
		name     string
		secret   string
		time     uint32
		expected string
	}{
		{
			name:     "base64 secret, timestamp 1706889600",
			secret:   base64Secret,
			time:     1706889600,
			expected: "274WN",
		},
		{
			name:     "base64 secret, timestamp 1700000000",
			secret:   base64Secret,
			time:     1700000000,
			expected: "5GH26",
		},
		{
			name:     "hex secret, timestamp 1706889600",
			secret:   hexSecret,
			time:     1706889600,
			expected: "274WN",
		},
		{
			name:     "20 repeated 0x61 bytes, first interval",
			secret:   "YWFhYWFhYWFhYWFhYWFhYWFhYWE=",
			time:     1,
			expected: "69DND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateAuthCode(tt.secret, tt.time)
			if err != nil {
				t.Fatalf("GenerateAuthCode() error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("GenerateAuthCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGenerateAuthCode_StableWithinWindow(t *testing.T) {
	secret := "t9MKLkm2D2GIG7bABTxjH7JIF/k="

	base := uint32(1706889600) // window start
	first, err := GenerateAuthCode(secret, base)
	if err != nil {
		t.Fatalf("GenerateAuthCode() error: %v", err)
	}

	for k := uint32(1); k < CodePeriod; k++ {
		got, err := GenerateAuthCode(secret, base+k)
		if err != nil {
			t.Fatalf("GenerateAuthCode(+%d) error: %v", k, err)
		}
		if got != first {
			t.Fatalf("code changed within window at +%ds: %q != %q", k, got, first)
		}
	}

	next, err := GenerateAuthCode(secret, base+CodePeriod)
	if err != nil {
		t.Fatalf("GenerateAuthCode() error: %v", err)
	}
	if next == first {
		t.Errorf("expected a different code in the next window, got %q twice", next)
	}
}

func TestGenerateAuthCode_Alphabet(t *testing.T) {
	got, err := GenerateAuthCode("YWFhYWFhYWFhYWFhYWFhYWFhYWE=", 1755000000)
	if err != nil {
		t.Fatalf("GenerateAuthCode() error: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("code length = %d, want 5", len(got))
	}
	for i := 0; i < len(got); i++ {
		if !strings.ContainsRune(authCodeChars, rune(got[i])) {
			t.Errorf("code %q contains %q outside the Steam alphabet", got, got[i])
		}
	}
}

func TestGenerateAuthCode_InvalidInput(t *testing.T) {
	if _, err := GenerateAuthCode("not-valid-base64!!!", 1706889600); err == nil {
		t.Error("expected error for invalid secret, got nil")
	}
	if _, err := GenerateAuthCode("t9MKLkm2D2GIG7bABTxjH7JIF/k=", 0); !errors.Is(err, ErrZeroTime) {
		t.Errorf("expected ErrZeroTime for zero time, got %v", err)
	}
}

func TestGenerateConfirmationKey(t *testing.T) {
	identitySecret := "SGVsbG9Xb3JsZFRlc3RTZWNyZXQh"

	tests := []struct {
		name      string
		secret    string
		timestamp uint32
		tag       string
		expected  string
	}{
		{
			name:      "conf tag",
			secret:    identitySecret,
			timestamp: 1706889600,
			tag:       "conf",
			expected:  "jzaUhIsX4AunO73r2by/Ex+0eEA=",
		},
		{
			name:      "allow tag",
			secret:    identitySecret,
			timestamp: 1706889600,
			tag:       "allow",
			expected:  "P61O6zhn+YEzp+zxCUXpQ6boFAQ=",
		},
		{
			name:      "empty tag",
			secret:    identitySecret,
			timestamp: 1706889600,
			tag:       "",
			expected:  "ihrP4qEavQZZmllRD2GtWS7x0CQ=",
		},
		{
			name:      "all-zero secret, time 1",
			secret:    "AAAAAAAAAAAAAAAAAAAAAAAAAAA=",
			timestamp: 1,
			tag:       "conf",
			expected:  "bMXdIttILBRRItTXjmiaqfM3vNc=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateConfirmationKey(tt.secret, tt.timestamp, tt.tag)
			if err != nil {
				t.Fatalf("GenerateConfirmationKey() error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("GenerateConfirmationKey() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGenerateConfirmationKey_TruncatesLongTag(t *testing.T) {
	secret := "SGVsbG9Xb3JsZFRlc3RTZWNyZXQh"

	long, err := GenerateConfirmationKey(secret, 5, strings.Repeat("x", 40))
	if err != nil {
		t.Fatalf("GenerateConfirmationKey() error: %v", err)
	}
	exact, err := GenerateConfirmationKey(secret, 5, strings.Repeat("x", 32))
	if err != nil {
		t.Fatalf("GenerateConfirmationKey() error: %v", err)
	}
	if long != exact {
		t.Errorf("tag beyond 32 bytes should be ignored: %q != %q", long, exact)
	}
}

func TestGenerateConfirmationKey_ZeroTime(t *testing.T) {
	if _, err := GenerateConfirmationKey("SGVsbG9Xb3JsZFRlc3RTZWNyZXQh", 0, "conf"); !errors.Is(err, ErrZeroTime) {
		t.Errorf("expected ErrZeroTime, got %v", err)
	}
}

func TestIsValidDeviceID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"android:5A6B7C8D-DEAD-BEEF-1234-567890ABCDEF", true},
		{"android:ab17d684-7c3f-7758-8af3-1836e87daac5", true},
		{"android:", false},
		{"", false},
		{"1234abc", true},  // hex
		{"1234g", false},   // neither digits nor hex
		{"12345678", true}, // plain digits
		{"android:----", false},
		{"ios:deadbeef", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := IsValidDeviceID(tt.id); got != tt.want {
				t.Errorf("IsValidDeviceID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestDeriveDeviceID(t *testing.T) {
	tests := []struct {
		name      string
		steamID64 uint64
		expected  string
	}{
		{
			name:      "typical steamid64",
			steamID64: 76561198012345678,
			expected:  "android:ab17d684-7c3f-7758-8af3-1836e87daac5",
		},
		{
			name:      "minimum valid steamid64",
			steamID64: 76561197960265728,
			expected:  "android:63e01aa8-e99c-42c4-ef4c-e78bd041f129",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveDeviceID(tt.steamID64)
			if got != tt.expected {
				t.Errorf("DeriveDeviceID() = %q, want %q", got, tt.expected)
			}
			if !IsValidDeviceID(got) {
				t.Errorf("derived device ID %q does not validate", got)
			}
		})
	}
}

func TestRandomDeviceID(t *testing.T) {
	id := RandomDeviceID()
	if !strings.HasPrefix(id, "android:") {
		t.Errorf("RandomDeviceID() = %q, want android: prefix", id)
	}
	if !IsValidDeviceID(id) {
		t.Errorf("RandomDeviceID() = %q does not validate", id)
	}
	if RandomDeviceID() == id {
		t.Error("two random device IDs collided")
	}
}
