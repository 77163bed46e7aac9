package hookuperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anthony-cros/hookup/hookuperr"
)

func TestNewWrapsCauseAndUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := hookuperr.New(hookuperr.Transport, cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "transport")
	assert.Contains(t, err.Error(), "dial tcp: timeout")
}

func TestWrapFormatsMessage(t *testing.T) {
	err := hookuperr.Wrap(hookuperr.Handshake, "upgrade failed: status %d", 403)
	assert.Contains(t, err.Error(), "status 403")
}

func TestClassifyFindsWrappedKind(t *testing.T) {
	inner := hookuperr.New(hookuperr.Protocol, errors.New("bad frame"))
	outer := fmt.Errorf("reading frame: %w", inner)

	kind, ok := hookuperr.Classify(outer)
	assert.True(t, ok)
	assert.Equal(t, hookuperr.Protocol, kind)
}

func TestClassifyOfPlainErrorIsFalse(t *testing.T) {
	_, ok := hookuperr.Classify(errors.New("plain"))
	assert.False(t, ok)
}

func TestRecoverableKinds(t *testing.T) {
	assert.True(t, hookuperr.Transport.Recoverable())
	assert.True(t, hookuperr.Handshake.Recoverable())
	assert.True(t, hookuperr.Protocol.Recoverable())
	assert.False(t, hookuperr.Serialization.Recoverable())
	assert.False(t, hookuperr.AckTimeout.Recoverable())
	assert.False(t, hookuperr.UserClose.Recoverable())
}

func TestKindStringCoversAllValues(t *testing.T) {
	kinds := []hookuperr.Kind{
		hookuperr.Transport, hookuperr.Handshake, hookuperr.Protocol,
		hookuperr.Serialization, hookuperr.AckTimeout, hookuperr.UserClose,
	}
	for _, k := range kinds {
		assert.NotEqual(t, "unknown", k.String())
	}
	assert.Equal(t, "unknown", hookuperr.Kind(99).String())
}
