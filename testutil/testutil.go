package testutil

import (
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), // nolint gosec
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int63 returns a non-negative pseudo-random int64.
func (r *RNG) Int63() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63()
}

// Float64 returns, as a float64, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789-"

// String returns a random string of exactly n bytes.
func (r *RNG) String(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.rand.Intn(len(alphabet))]
	}
	return string(b)
}

// Strings returns n random strings with lengths in [1, maxLen].
func (r *RNG) Strings(n, maxLen int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = r.String(1 + r.Intn(maxLen))
	}
	return out
}

// Ints returns n random ints in [0, ceil).
func (r *RNG) Ints(n, ceil int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = r.Intn(ceil)
	}
	return out
}
