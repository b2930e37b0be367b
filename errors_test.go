package quorum

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validationf("bad input")))
	assert.Equal(t, KindNotFound, KindOf(NotFoundf("missing")))
	assert.Equal(t, KindUnknown, KindOf(fmt.Errorf("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("outer: %w", Conflictf("taken"))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindConflict))
	assert.False(t, IsKind(wrapped, KindCapacity))
}

func TestInfrastructurefKeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Infrastructuref(cause, "backend %s down", "redis")

	assert.Equal(t, KindInfrastructure, KindOf(err))
	assert.ErrorContains(t, err, "backend redis down")
	assert.ErrorContains(t, err, "connection reset")
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "capacity: room is full", Capacityf("room is full").Error())
	assert.Equal(t, "lock_timeout", KindLockTimeout.String())
}
