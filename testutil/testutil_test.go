package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrings(t *testing.T) {
	rng := NewRNG(4711)

	s := rng.Strings(100, 24)

	assert.Equal(t, 100, len(s))
	for _, v := range s {
		assert.GreaterOrEqual(t, len(v), 1)
		assert.LessOrEqual(t, len(v), 24)
	}
}

func TestInts(t *testing.T) {
	rng := NewRNG(4711)

	n := rng.Ints(100, 1<<20)

	assert.Equal(t, 100, len(n))
	for _, v := range n {
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 1<<20)
	}
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	s1 := rng.Strings(10, 16)
	n1 := rng.Ints(10, 100)

	rng.Reset()
	s2 := rng.Strings(10, 16)
	n2 := rng.Ints(10, 100)

	assert.Equal(t, s1, s2)
	assert.Equal(t, n1, n2)
}

func TestSameSeedSameOutput(t *testing.T) {
	a := NewRNG(42)
	b := NewRNG(42)

	assert.Equal(t, a.Strings(50, 12), b.Strings(50, 12))
	assert.Equal(t, a.Ints(50, 1000), b.Ints(50, 1000))
	assert.Equal(t, int64(42), a.Seed())
}
