// Package testutil provides testing utilities for segvec.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe random source and deterministic
// dataset generators so tests across packages agree on their inputs.
//
// # Deterministic Datasets
//
//	rng := testutil.NewRNG(seed)
//	words := rng.Strings(1000, 24) // 1000 strings up to 24 bytes
//	nums := rng.Ints(1000, 1<<20)  // 1000 ints in [0, 1<<20)
//
// The same seed always produces the same dataset, so failures reproduce.
package testutil
