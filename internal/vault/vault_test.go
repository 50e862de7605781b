package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVault(t *testing.T) {
	v, err := New("test-master-key", []byte("testsalt"))
	assert.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		ciphertext, err := v.Encrypt("12345678901")
		assert.NoError(t, err)
		assert.NotEqual(t, "12345678901", ciphertext)

		plaintext, err := v.Decrypt(ciphertext)
		assert.NoError(t, err)
		assert.Equal(t, "12345678901", plaintext)
	})

	t.Run("distinct nonces per encryption", func(t *testing.T) {
		first, err := v.Encrypt("same value")
		assert.NoError(t, err)
		second, err := v.Encrypt("same value")
		assert.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("tampered ciphertext rejected", func(t *testing.T) {
		ciphertext, err := v.Encrypt("12345678901")
		assert.NoError(t, err)

		tampered := []byte(ciphertext)
		if tampered[0] == 'A' {
			tampered[0] = 'B'
		} else {
			tampered[0] = 'A'
		}
		_, err = v.Decrypt(string(tampered))
		assert.ErrorIs(t, err, ErrInvalidCiphertext)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		other, err := New("different-master-key", []byte("testsalt"))
		assert.NoError(t, err)

		ciphertext, err := v.Encrypt("12345678901")
		assert.NoError(t, err)

		_, err = other.Decrypt(ciphertext)
		assert.ErrorIs(t, err, ErrInvalidCiphertext)
	})

	t.Run("missing master key rejected", func(t *testing.T) {
		_, err := New("", []byte("testsalt"))
		assert.Error(t, err)
	})
}
