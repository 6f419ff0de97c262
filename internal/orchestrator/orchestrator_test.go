package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignedMagnitudeFormatting(t *testing.T) {
	assert.Equal(t, "+100", signedMagnitude(1))
	assert.Equal(t, "-100", signedMagnitude(-1))
	assert.Equal(t, "+000", signedMagnitude(0))
	assert.Equal(t, "+050", signedMagnitude(0.5))
}

func TestJoinSpace(t *testing.T) {
	assert.Equal(t, "A B", joinSpace([]string{"A", "B"}))
	assert.Equal(t, "A", joinSpace([]string{"A"}))
	assert.Equal(t, "", joinSpace(nil))
}

func TestNewMacroIDLooksLikeHex(t *testing.T) {
	id := newMacroID()
	assert.Len(t, id, 32)
	for _, c := range id {
		assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'))
	}
	assert.NotEqual(t, id, newMacroID())
}

func TestMacBytesBestEffortFallsBackToZero(t *testing.T) {
	assert.Equal(t, [6]byte{}, macBytesBestEffort("not-a-mac"))
	assert.Equal(t, [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, macBytesBestEffort("AA:BB:CC:DD:EE:FF"))
}

func TestNewOrchestratorStartsEmpty(t *testing.T) {
	o := New()
	_, err := o.State(1)
	assert.Error(t, err)
}
