package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldSendOnChange(t *testing.T) {
	assert.True(t, shouldSend([]byte{1, 2, 3}, []byte{1, 2, 4}, 0))
}

func TestShouldSendSuppressedWhenUnchanged(t *testing.T) {
	assert.False(t, shouldSend([]byte{1, 2, 3}, []byte{1, 2, 3}, keepAliveTicks-1))
}

func TestShouldSendKeepAliveAfterThreshold(t *testing.T) {
	assert.True(t, shouldSend([]byte{1, 2, 3}, []byte{1, 2, 3}, keepAliveTicks))
}

func TestConfigDefaultFrequency(t *testing.T) {
	assert.Equal(t, float64(66), Config{}.frequency())
	assert.Equal(t, float64(120), Config{FrequencyHz: 120}.frequency())
}
