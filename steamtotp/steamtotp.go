// Package steamtotp implements Steam's variant of time-based one-time
// passwords: the 5-character Steam Guard login codes and the HMAC-SHA1
// confirmation keys the mobile app signs /mobileconf requests with.
package steamtotp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const authCodeChars = "23456789BCDFGHJKMNPQRTVWXY"

// CodePeriod is the validity window of a login code in seconds.
const CodePeriod = 30

// ErrZeroTime is returned when a code or key is requested for time zero,
// which means the caller never obtained Steam time.
var ErrZeroTime = errors.New("steamtotp: time is zero")

// ErrInvalidDeviceID is returned when a device ID fails validation.
var ErrInvalidDeviceID = errors.New("steamtotp: invalid device ID")

// GenerateAuthCode generates a 5-character Steam Guard authentication code
// valid for the 30-second window containing steamTime.
// The sharedSecret is the shared_secret from a Steam maFile (base64 or 40-char hex).
func GenerateAuthCode(sharedSecret string, steamTime uint32) (string, error) {
	if steamTime == 0 {
		return "", ErrZeroTime
	}

	secret, err := decodeSecret(sharedSecret)
	if err != nil {
		return "", fmt.Errorf("decode shared secret: %w", err)
	}

	interval := uint64(steamTime / CodePeriod)

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], interval)

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	hash := mac.Sum(nil)

	// RFC 4226 dynamic truncation
	offset := hash[len(hash)-1] & 0x0f
	code := binary.BigEndian.Uint32(hash[offset:offset+4]) & 0x7fffffff

	var result [5]byte
	for i := range result {
		result[i] = authCodeChars[code%uint32(len(authCodeChars))]
		code /= uint32(len(authCodeChars))
	}

	return string(result[:]), nil
}

// GenerateConfirmationKey generates a base64 HMAC-SHA1 confirmation key for
// the given time and tag. The identitySecret is the identity_secret from a
// Steam maFile (base64 or 40-char hex). Tags longer than 32 bytes are
// truncated, matching the mobile app.
func GenerateConfirmationKey(identitySecret string, steamTime uint32, tag string) (string, error) {
	if steamTime == 0 {
		return "", ErrZeroTime
	}

	secret, err := decodeSecret(identitySecret)
	if err != nil {
		return "", fmt.Errorf("decode identity secret: %w", err)
	}

	if len(tag) > 32 {
		tag = tag[:32]
	}

	buf := make([]byte, 8+len(tag))
	binary.BigEndian.PutUint64(buf[:8], uint64(steamTime))
	copy(buf[8:], tag)

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// decodeSecret decodes a shared secret from either hex or base64 encoding.
func decodeSecret(secret string) ([]byte, error) {
	if len(secret) == 40 {
		if b, err := hex.DecodeString(secret); err == nil {
			return b, nil
		}
	}
	b, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// IsValidDeviceID reports whether deviceID looks like a device identifier
// Steam will accept. The optional "<tag>:" prefix (usually "android:") and
// any dashes are stripped; what remains must be non-empty and consist
// entirely of decimal digits or entirely of hexadecimal digits.
func IsValidDeviceID(deviceID string) bool {
	if deviceID == "" {
		return false
	}

	rest := deviceID
	if i := strings.IndexByte(deviceID, ':'); i >= 0 {
		rest = deviceID[i+1:]
	}
	rest = strings.ReplaceAll(rest, "-", "")
	if rest == "" {
		return false
	}

	digits, hexDigits := true, true
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if c < '0' || c > '9' {
			digits = false
		}
		if !isHexDigit(c) {
			hexDigits = false
		}
	}
	return digits || hexDigits
}

func isHexDigit(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'a' && c <= 'f':
		return true
	case c >= 'A' && c <= 'F':
		return true
	}
	return false
}

// DeriveDeviceID generates the deterministic device ID the official app
// derives from a SteamID64 (SHA1, formatted as an android: UUID).
func DeriveDeviceID(steamID64 uint64) string {
	h := sha1.Sum(fmt.Appendf(nil, "%d", steamID64))
	s := fmt.Sprintf("%x", h)
	return fmt.Sprintf("android:%s-%s-%s-%s-%s",
		s[0:8], s[8:12], s[12:16], s[16:20], s[20:32])
}

// RandomDeviceID generates a fresh random device ID for accounts that never
// recorded one.
func RandomDeviceID() string {
	return "android:" + uuid.NewString()
}
