// rand/rand.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rand

import (
	"github.com/MichaelTJones/pcg"
)

///////////////////////////////////////////////////////////////////////////
// Random numbers.

type Rand struct {
	r *pcg.PCG32
}

func New() Rand {
	return Rand{r: pcg.NewPCG32()}
}

func (r *Rand) Seed(s int64) {
	r.r.Seed(uint64(s), 0xda3e39cb94b95bdb)
}

func (r *Rand) Intn(n int) int {
	return int(r.r.Bounded(uint32(n)))
}

func (r *Rand) Int31n(n int32) int32 {
	return int32(r.r.Bounded(uint32(n)))
}

func (r *Rand) Float32() float32 {
	return float32(r.r.Random()) / (1<<32 - 1)
}

func (r *Rand) Uint32() uint32 {
	return r.r.Random()
}

// Shuffle permutes the first n integers in place via the provided swap
// function, Fisher-Yates style.
func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		swap(i, j)
	}
}

// Drop-in replacement for the subset of math/rand that we use...
var r Rand

func init() {
	r = New()
}

func Seed(s int64) {
	r.Seed(s)
}

func Intn(n int) int {
	return r.Intn(n)
}

func Float32() float32 {
	return r.Float32()
}

func Uint32() uint32 {
	return r.Uint32()
}

// SampleSlice uniformly randomly samples an element of a non-empty slice.
func SampleSlice[T any](slice []T) T {
	return slice[Intn(len(slice))]
}
