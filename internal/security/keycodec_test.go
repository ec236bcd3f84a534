package security

import (
	"errors"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := Initialize("test-master-secret"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestGenerateKeyFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{5}-[A-Z0-9]{5}-[A-Z0-9]{5}-[A-Z0-9]{5}-[A-Z0-9]{5}$`)

	for i := 0; i < 100; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		assert.True(t, pattern.MatchString(key), "key %q does not match the required format", key)
	}
}

func TestLookupTokenDeterministic(t *testing.T) {
	key := "ABCDE-FGHIJ-KLMNO-PQRST-UVWXY"

	first, err := LookupToken(key, "team-1")
	require.NoError(t, err)
	second, err := LookupToken(key, "team-1")
	require.NoError(t, err)
	assert.Equal(t, first, second, "identical inputs must produce identical tokens")
	assert.Len(t, first, 64, "token must be hex-encoded SHA-256 output")

	otherTeam, err := LookupToken(key, "team-2")
	require.NoError(t, err)
	assert.NotEqual(t, first, otherTeam, "same key under a different team must produce a different token")

	otherKey, err := LookupToken("AAAAA-BBBBB-CCCCC-DDDDD-EEEEE", "team-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, otherKey)
}

func TestLookupTokenRequiresInitialization(t *testing.T) {
	keyMutex.Lock()
	keyInitialized = false
	keyMutex.Unlock()
	defer func() {
		keyMutex.Lock()
		keyInitialized = true
		keyMutex.Unlock()
	}()

	_, err := LookupToken("ABCDE-FGHIJ-KLMNO-PQRST-UVWXY", "team-1")
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = GenerateUnique("team-1", func(string) (bool, error) {
		t.Fatal("existence check must not run without key material")
		return false, nil
	})
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	keys := []string{
		"ABCDE-FGHIJ-KLMNO-PQRST-UVWXY",
		"00000-11111-22222-33333-44444",
		"ZZZZZ-ZZZZZ-ZZZZZ-ZZZZZ-ZZZZZ",
	}

	for _, key := range keys {
		payload, err := EncryptKey(key)
		require.NoError(t, err)

		parts := strings.Split(payload, ":")
		require.Len(t, parts, 3, "payload must be iv:ciphertext:tag")
		assert.Len(t, parts[0], 32, "IV must be 16 hex-encoded bytes")
		assert.Len(t, parts[2], 32, "auth tag must be 16 hex-encoded bytes")

		plaintext, err := DecryptKey(payload)
		require.NoError(t, err)
		assert.Equal(t, key, plaintext)
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	key := "ABCDE-FGHIJ-KLMNO-PQRST-UVWXY"

	first, err := EncryptKey(key)
	require.NoError(t, err)
	second, err := EncryptKey(key)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "two encryptions of the same key must differ")
}

func TestDecryptRejectsTampering(t *testing.T) {
	payload, err := EncryptKey("ABCDE-FGHIJ-KLMNO-PQRST-UVWXY")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mangle func(string) string
	}{
		{"flipped ciphertext byte", func(p string) string {
			parts := strings.Split(p, ":")
			ct := []byte(parts[1])
			if ct[0] == 'a' {
				ct[0] = 'b'
			} else {
				ct[0] = 'a'
			}
			return parts[0] + ":" + string(ct) + ":" + parts[2]
		}},
		{"flipped tag byte", func(p string) string {
			parts := strings.Split(p, ":")
			tag := []byte(parts[2])
			if tag[0] == 'a' {
				tag[0] = 'b'
			} else {
				tag[0] = 'a'
			}
			return parts[0] + ":" + parts[1] + ":" + string(tag)
		}},
		{"missing section", func(p string) string {
			parts := strings.Split(p, ":")
			return parts[0] + ":" + parts[1]
		}},
		{"garbage", func(string) string { return "not-a-payload" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptKey(tt.mangle(payload))
			assert.ErrorIs(t, err, ErrDecryptFailed)
		})
	}
}

func TestGenerateUnique(t *testing.T) {
	t.Run("returns first free key", func(t *testing.T) {
		calls := 0
		key, err := GenerateUnique("team-1", func(string) (bool, error) {
			calls++
			return false, nil
		})
		require.NoError(t, err)
		assert.NotEmpty(t, key)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries past collisions", func(t *testing.T) {
		calls := 0
		key, err := GenerateUnique("team-1", func(string) (bool, error) {
			calls++
			return calls < 3, nil
		})
		require.NoError(t, err)
		assert.NotEmpty(t, key)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after bounded attempts", func(t *testing.T) {
		calls := 0
		key, err := GenerateUnique("team-1", func(string) (bool, error) {
			calls++
			return true, nil
		})
		assert.ErrorIs(t, err, ErrKeyExhausted)
		assert.Empty(t, key)
		assert.Equal(t, maxGenerateAttempts, calls)
	})

	t.Run("propagates store errors", func(t *testing.T) {
		storeErr := errors.New("store down")
		_, err := GenerateUnique("team-1", func(string) (bool, error) {
			return false, storeErr
		})
		assert.ErrorIs(t, err, storeErr)
	})
}
