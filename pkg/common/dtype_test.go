package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDType(t *testing.T) {
	assert.Equal(t, F32, ParseDType("f32"))
	assert.Equal(t, F16, ParseDType("f16"))
	assert.Equal(t, BF16, ParseDType("bf16"))
	assert.Equal(t, F8, ParseDType("f8"))

	// unknown names degrade to the default tuning precision
	assert.Equal(t, F8, ParseDType("fp64"))
}

func TestDTypeSizeBytes(t *testing.T) {
	assert.Equal(t, 4, F32.SizeBytes())
	assert.Equal(t, 2, F16.SizeBytes())
	assert.Equal(t, 2, BF16.SizeBytes())
	assert.Equal(t, 1, F8.SizeBytes())
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "5120x512x5120", Shape{M: 5120, N: 512, K: 5120}.String())
}
