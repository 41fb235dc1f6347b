package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeISBN(t *testing.T) {
	t.Run("strips separators", func(t *testing.T) {
		assert.Equal(t, "9780684835396", NormalizeISBN("978-0-684-83539-6"))
	})

	t.Run("strips qualifiers", func(t *testing.T) {
		assert.Equal(t, "0306406152", NormalizeISBN("0306406152 (pbk.)"))
	})

	t.Run("uppercases check digit", func(t *testing.T) {
		assert.Equal(t, "097522980X", NormalizeISBN("0-9752298-0-x"))
	})

	t.Run("idempotent", func(t *testing.T) {
		inputs := []string{"978-0-684-83539-6", "0306406152 (pbk.)", "garbage-12X", ""}
		for _, in := range inputs {
			once := NormalizeISBN(in)
			assert.Equal(t, once, NormalizeISBN(once))
		}
	})
}

func TestValidateISBN(t *testing.T) {
	t.Run("valid 13 digits", func(t *testing.T) {
		isbn, err := ValidateISBN("978-0684835396")
		assert.NoError(t, err)
		assert.Equal(t, "9780684835396", isbn)
	})

	t.Run("valid 10 digits with X", func(t *testing.T) {
		isbn, err := ValidateISBN("097522980X")
		assert.NoError(t, err)
		assert.Equal(t, "097522980X", isbn)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := ValidateISBN("12345")
		assert.ErrorIs(t, err, ErrInvalidISBN)
	})

	t.Run("rejects X in a 13 digit form", func(t *testing.T) {
		_, err := ValidateISBN("978068483539X")
		assert.ErrorIs(t, err, ErrInvalidISBN)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ValidateISBN("")
		assert.ErrorIs(t, err, ErrInvalidISBN)
	})
}

func TestStripPrefix13(t *testing.T) {
	assert.Equal(t, "0684835396", StripPrefix13("9780684835396"))
	assert.Equal(t, "8998765432", StripPrefix13("9798998765432"))
	assert.Equal(t, "0306406152", StripPrefix13("0306406152"))
	assert.Equal(t, "9770684835396", StripPrefix13("9770684835396"))
}
