package tree

import (
	"math"
	"sync/atomic"
)

// corrHistSize is the fixed bucket count for CorrHistTable, per spec.md §2.
const corrHistSize = 1 << 16

// CorrHistEntry is the correction-history accumulator for one bucket: the
// running sum of observed-minus-predicted deltas and the running sum of
// update weights.
type CorrHistEntry struct {
	DeltaSum  float32
	WeightSum float32
}

// Delta returns the mean correction, or 0 when WeightSum is within machine
// epsilon of zero (no data yet).
func (e CorrHistEntry) Delta() float32 {
	if math32Abs(e.WeightSum) < float32EpsilonLike {
		return 0
	}
	return e.DeltaSum / e.WeightSum
}

// float32EpsilonLike mirrors Rust's f32::EPSILON, used by the source table
// to guard the delta() division.
const float32EpsilonLike = 1.1920929e-7

func math32Abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func packCorrHistEntry(e CorrHistEntry) uint64 {
	return uint64(math.Float32bits(e.DeltaSum))<<32 | uint64(math.Float32bits(e.WeightSum))
}

func unpackCorrHistEntry(bits uint64) CorrHistEntry {
	return CorrHistEntry{
		DeltaSum:  math.Float32frombits(uint32(bits >> 32)),
		WeightSum: math.Float32frombits(uint32(bits)),
	}
}

// CorrHistTable is the correction-history table: a fixed 2^16-bucket vector
// of 8-byte atomic slots, each packing a (delta_sum, weight_sum) pair.
// Updates run a CAS loop so the pair stays consistent without a lock.
type CorrHistTable struct {
	slots [corrHistSize]uint64
}

// NewCorrHistTable creates a zeroed CorrHistTable.
func NewCorrHistTable() *CorrHistTable {
	return &CorrHistTable{}
}

func corrHistIndex(key uint64) uint64 {
	return key % corrHistSize
}

// GetOrCreate loads the current entry for key. There is no real
// "create" step — a zero entry is a valid starting point — the name
// matches the source table's accessor for symmetry with Update.
func (t *CorrHistTable) GetOrCreate(key uint64) CorrHistEntry {
	bits := atomic.LoadUint64(&t.slots[corrHistIndex(key)])
	return unpackCorrHistEntry(bits)
}

// Update adds delta and weight to the bucket for key via a CAS retry loop,
// so the pair is updated atomically as a whole even under contention.
func (t *CorrHistTable) Update(key uint64, delta, weight float32) {
	slot := &t.slots[corrHistIndex(key)]
	for {
		oldBits := atomic.LoadUint64(slot)
		old := unpackCorrHistEntry(oldBits)
		next := CorrHistEntry{
			DeltaSum:  old.DeltaSum + delta,
			WeightSum: old.WeightSum + weight,
		}
		newBits := packCorrHistEntry(next)
		if atomic.CompareAndSwapUint64(slot, oldBits, newBits) {
			return
		}
	}
}

// Clear zeroes every bucket.
func (t *CorrHistTable) Clear() {
	for i := range t.slots {
		atomic.StoreUint64(&t.slots[i], 0)
	}
}
