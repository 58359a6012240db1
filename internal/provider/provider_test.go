package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	assert.Equal(t, KindNone, Kind(nil))
	assert.Equal(t, KindToken, Kind(fmt.Errorf("vk: search: %w", ErrToken)))
	assert.Equal(t, KindNotFound, Kind(fmt.Errorf("vk: users.get: %w", ErrNotFound)))
	assert.Equal(t, KindProvider, Kind(&Error{Op: "users.search", Code: 10, Msg: "internal"}))
	assert.Equal(t, KindProvider, Kind(errors.New("dial tcp: timeout")))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "provider: photos.get: code 9: flood", (&Error{Op: "photos.get", Code: 9, Msg: "flood"}).Error())
	inner := errors.New("eof")
	err := &Error{Op: "users.get", Err: inner}
	assert.ErrorIs(t, err, inner)
}
