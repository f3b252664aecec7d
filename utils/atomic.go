package utils

import (
	"math"
	"sync/atomic"
)

// AtomicFloats is a float64 accumulation buffer safe for concurrent
// Add from arbitrary goroutines, used by the atomic scatter assembly
// strategy where faces are processed in flat partitions without the
// race free group constraint
type AtomicFloats []uint64

func NewAtomicFloats(n int) AtomicFloats {
	return make(AtomicFloats, n)
}

func (af AtomicFloats) Add(i int, v float64) {
	for {
		old := atomic.LoadUint64(&af[i])
		n := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(&af[i], old, n) {
			return
		}
	}
}

func (af AtomicFloats) Load(i int) float64 {
	return math.Float64frombits(atomic.LoadUint64(&af[i]))
}

func (af AtomicFloats) Reset() {
	for i := range af {
		af[i] = 0
	}
}
