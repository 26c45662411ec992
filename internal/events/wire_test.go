package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireFormatFraming(t *testing.T) {
	frame := EncodeWireFormat(258, []byte(`{"xp":10}`))
	assert.Equal(t, []byte{0, 0, 0, 1, 2}, frame[:5])

	id, payload, err := DecodeWireFormat(frame)
	require.NoError(t, err)
	assert.Equal(t, 258, id)
	assert.JSONEq(t, `{"xp":10}`, string(payload))
}

func TestDecodeWireFormatRejectsUnframedValues(t *testing.T) {
	for _, value := range [][]byte{nil, {0, 0}, []byte(`{"a":1}`), {1, 0, 0, 0, 1}} {
		_, _, err := DecodeWireFormat(value)
		assert.ErrorIs(t, err, ErrUnframed)
	}
}
