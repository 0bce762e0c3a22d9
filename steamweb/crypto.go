package steamweb

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/k64z/steamguard/steamid"
)

const sessionKeyLen = 32

// generateSessionKey returns 32 cryptographically random bytes used as the
// AES session key of the web handshake.
func generateSessionKey() ([]byte, error) {
	key := make([]byte, sessionKeyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("rand.Read: %w", err)
	}
	return key, nil
}

// encryptSessionKey RSA-encrypts the session key with the universe's public
// key using PKCS#1 v1.5 padding, which is what ISteamUserAuth expects.
func encryptSessionKey(universe steamid.Universe, sessionKey []byte) ([]byte, error) {
	der, ok := universePublicKeys[universe]
	if !ok {
		return nil, fmt.Errorf("no RSA public key for universe %s", universe)
	}

	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}

	return rsa.EncryptPKCS1v15(rand.Reader, rsaPub, sessionKey)
}

// symmetricEncrypt encrypts plaintext with AES-256-CBC the way Steam's
// SymmetricEncrypt does: a random 16-byte IV, output is
// AES-ECB(IV) + AES-CBC(plaintext, IV) with PKCS7 padding.
func symmetricEncrypt(sessionKey, plaintext []byte) ([]byte, error) {
	if len(sessionKey) != sessionKeyLen {
		return nil, fmt.Errorf("session key must be %d bytes, got %d", sessionKeyLen, len(sessionKey))
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("rand.Read: %w", err)
	}

	encryptedIV := make([]byte, aes.BlockSize)
	block.Encrypt(encryptedIV, iv)

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)

	out := make([]byte, aes.BlockSize+len(ciphertext))
	copy(out, encryptedIV)
	copy(out[aes.BlockSize:], ciphertext)
	return out, nil
}

// symmetricDecrypt reverses symmetricEncrypt.
func symmetricDecrypt(sessionKey, data []byte) ([]byte, error) {
	if len(sessionKey) != sessionKeyLen {
		return nil, fmt.Errorf("session key must be %d bytes, got %d", sessionKeyLen, len(sessionKey))
	}
	if len(data) < 2*aes.BlockSize {
		return nil, fmt.Errorf("ciphertext too short: %d bytes", len(data))
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	block.Decrypt(iv, data[:aes.BlockSize])

	cbcData := data[aes.BlockSize:]
	if len(cbcData)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext not block-aligned: %d bytes", len(cbcData))
	}

	plaintext := make([]byte, len(cbcData))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, cbcData)

	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded data length: %d", len(data))
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, fmt.Errorf("invalid padding value: %d", padding)
	}
	for i := len(data) - padding; i < len(data); i++ {
		if data[i] != byte(padding) {
			return nil, fmt.Errorf("invalid padding byte at position %d", i)
		}
	}
	return data[:len(data)-padding], nil
}

// universePublicKeys maps each Steam universe to its DER-encoded PKIX RSA
// public key. From SteamKit2/Util/KeyDictionary.cs; only the Public universe
// key is published.
var universePublicKeys = map[steamid.Universe][]byte{
	steamid.UniversePublic: {
		0x30, 0x81, 0x9D, 0x30, 0x0D, 0x06, 0x09, 0x2A, 0x86, 0x48, 0x86, 0xF7, 0x0D, 0x01, 0x01, 0x01,
		0x05, 0x00, 0x03, 0x81, 0x8B, 0x00, 0x30, 0x81, 0x87, 0x02, 0x81, 0x81, 0x00, 0xDF, 0xEC, 0x1A,
		0xD6, 0x2C, 0x10, 0x66, 0x2C, 0x17, 0x35, 0x3A, 0x14, 0xB0, 0x7C, 0x59, 0x11, 0x7F, 0x9D, 0xD3,
		0xD8, 0x2B, 0x7A, 0xE3, 0xE0, 0x15, 0xCD, 0x19, 0x1E, 0x46, 0xE8, 0x7B, 0x87, 0x74, 0xA2, 0x18,
		0x46, 0x31, 0xA9, 0x03, 0x14, 0x79, 0x82, 0x8E, 0xE9, 0x45, 0xA2, 0x49, 0x12, 0xA9, 0x23, 0x68,
		0x73, 0x89, 0xCF, 0x69, 0xA1, 0xB1, 0x61, 0x46, 0xBD, 0xC1, 0xBE, 0xBF, 0xD6, 0x01, 0x1B, 0xD8,
		0x81, 0xD4, 0xDC, 0x90, 0xFB, 0xFE, 0x4F, 0x52, 0x73, 0x66, 0xCB, 0x95, 0x70, 0xD7, 0xC5, 0x8E,
		0xBA, 0x1C, 0x7A, 0x33, 0x75, 0xA1, 0x62, 0x34, 0x46, 0xBB, 0x60, 0xB7, 0x80, 0x68, 0xFA, 0x13,
		0xA7, 0x7A, 0x8A, 0x37, 0x4B, 0x9E, 0xC6, 0xF4, 0x5D, 0x5F, 0x3A, 0x99, 0xF9, 0x9E, 0xC4, 0x3A,
		0xE9, 0x63, 0xA2, 0xBB, 0x88, 0x19, 0x28, 0xE0, 0xE7, 0x14, 0xC0, 0x42, 0x89, 0x02, 0x01, 0x11,
	},
}
