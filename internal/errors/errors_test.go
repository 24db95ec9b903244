package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := NotFound("links.Resolve", "short code %q not found", "abc")
	wrapped := fmt.Errorf("handler: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, `short code "abc" not found`, err.Detail())
}

func TestStoreUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := StoreUnavailable("locations.FindNearby", cause)

	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "backing store unavailable", err.Detail())
	assert.Contains(t, err.Error(), "dial tcp")
}

func TestShortCodeGenerationFailedIsResourceExhausted(t *testing.T) {
	assert.True(t, errors.Is(ErrShortCodeGenerationFailed, ErrResourceExhausted))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}
