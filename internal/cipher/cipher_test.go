package cipher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	inputs := []string{"", "hello", "Hello, World!", "grüße ☕ 123", "The Quick Brown Fox"}

	for _, name := range Names() {
		c, err := Lookup(name)
		require.NoError(t, err)
		for _, in := range inputs {
			assert.Equal(t, in, c.Decode(c.Encode(in)), "%s(%q)", name, in)
		}
	}
}

func TestRot13(t *testing.T) {
	c := Rot13{}
	assert.Equal(t, "uryyb", c.Encode("hello"))
	assert.Equal(t, "Nyvpr unf wbvarq", c.Encode("Alice has joined"))
	assert.Equal(t, "123 ☕", c.Encode("123 ☕"))
}

func TestLookup(t *testing.T) {
	c, err := Lookup("")
	require.NoError(t, err)
	assert.Equal(t, "cleartext", c.Name())

	c, err = Lookup(" ROT13 ")
	require.NoError(t, err)
	assert.Equal(t, "rot13", c.Name())

	_, err = Lookup("enigma")
	assert.ErrorIs(t, err, ErrUnknown)
	assert.Equal(t, "cleartext", LookupOrClear("enigma").Name())
}
