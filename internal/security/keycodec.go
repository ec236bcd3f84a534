package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	// License keys are five dash-joined blocks of five characters.
	keyBlocks    = 5
	keyBlockSize = 5
	keyCharset   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// GCM nonce size for the stored key ciphertext.
	ivSize  = 16
	tagSize = 16

	// Attempts before GenerateUnique gives up on a collision-free key.
	maxGenerateAttempts = 5
)

var (
	encryptionKey  []byte
	lookupSecret   []byte
	keyMutex       sync.RWMutex
	keyInitialized bool

	ErrNoKey         = errors.New("key material not initialized")
	ErrDecryptFailed = errors.New("license key decryption failed")
	ErrKeyExhausted  = errors.New("could not generate a unique license key")
)

// Initialize derives the AES-256 encryption key and the HMAC lookup secret
// from the master secret. Must be called before any codec operation.
func Initialize(masterSecret string) error {
	if masterSecret == "" {
		return errors.New("master secret must not be empty")
	}

	keyMutex.Lock()
	defer keyMutex.Unlock()

	kdf := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte("keygate-license-keys"))

	encKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, encKey); err != nil {
		return fmt.Errorf("failed to derive encryption key: %w", err)
	}
	lookup := make([]byte, 32)
	if _, err := io.ReadFull(kdf, lookup); err != nil {
		return fmt.Errorf("failed to derive lookup secret: %w", err)
	}

	encryptionKey = encKey
	lookupSecret = lookup
	keyInitialized = true

	return nil
}

// GenerateKey produces a new license key: XXXXX-XXXXX-XXXXX-XXXXX-XXXXX with
// characters drawn from [A-Z0-9].
func GenerateKey() (string, error) {
	raw := make([]byte, keyBlocks*keyBlockSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	blocks := make([]string, keyBlocks)
	for i := 0; i < keyBlocks; i++ {
		var b strings.Builder
		for j := 0; j < keyBlockSize; j++ {
			b.WriteByte(keyCharset[int(raw[i*keyBlockSize+j])%len(keyCharset)])
		}
		blocks[i] = b.String()
	}
	return strings.Join(blocks, "-"), nil
}

// GenerateUnique generates keys until one passes the caller's existence
// check, bounded at a fixed number of attempts. The exists func is expected
// to consult the per-team unique lookup-token index. ErrKeyExhausted tells
// the caller to surface a server error instead of returning a colliding key.
func GenerateUnique(teamID string, exists func(lookupToken string) (bool, error)) (string, error) {
	for i := 0; i < maxGenerateAttempts; i++ {
		key, err := GenerateKey()
		if err != nil {
			return "", err
		}
		token, err := LookupToken(key, teamID)
		if err != nil {
			return "", err
		}
		taken, err := exists(token)
		if err != nil {
			return "", err
		}
		if !taken {
			return key, nil
		}
	}
	return "", ErrKeyExhausted
}

// LookupToken computes the deterministic per-team index for a license key:
// hex(HMAC-SHA256(secret, key + ":" + teamID)). The verification hot path
// hashes the presented key with the same function and compares tokens, so
// no decryption is ever needed there.
func LookupToken(key, teamID string) (string, error) {
	keyMutex.RLock()
	if !keyInitialized {
		keyMutex.RUnlock()
		return "", ErrNoKey
	}
	secret := lookupSecret
	keyMutex.RUnlock()

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(key + ":" + teamID))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// EncryptKey encrypts a license key with AES-256-GCM under a fresh random
// 16-byte IV. Output format: iv_hex:ciphertext_hex:authTag_hex.
func EncryptKey(key string) (string, error) {
	keyMutex.RLock()
	if !keyInitialized {
		keyMutex.RUnlock()
		return "", ErrNoKey
	}
	encKey := make([]byte, len(encryptionKey))
	copy(encKey, encryptionKey)
	keyMutex.RUnlock()

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, iv, []byte(key), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext) + ":" + hex.EncodeToString(tag), nil
}

// DecryptKey is the inverse of EncryptKey. A payload whose auth tag does not
// verify means tampered or corrupted stored key material: the caller gets
// ErrDecryptFailed and must treat it as fatal, never as a soft miss.
func DecryptKey(payload string) (string, error) {
	keyMutex.RLock()
	if !keyInitialized {
		keyMutex.RUnlock()
		return "", ErrNoKey
	}
	encKey := make([]byte, len(encryptionKey))
	copy(encKey, encryptionKey)
	keyMutex.RUnlock()

	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return "", ErrDecryptFailed
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", ErrDecryptFailed
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrDecryptFailed
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != tagSize {
		return "", ErrDecryptFailed
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrDecryptFailed
	}

	return string(plaintext), nil
}
