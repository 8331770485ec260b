package resource

// EnergyStorage is a clipped integer accumulator.
type EnergyStorage struct {
	capacity int
	stored   int
}

func NewEnergyStorage(capacity int) *EnergyStorage {
	e := &EnergyStorage{}
	e.SetCapacity(capacity)
	return e
}

func (e *EnergyStorage) Capacity() int { return e.capacity }
func (e *EnergyStorage) Stored() int   { return e.stored }
func (e *EnergyStorage) IsEmpty() bool { return e.stored <= 0 }
func (e *EnergyStorage) IsFull() bool  { return e.stored >= e.capacity }

// SetCapacity resizes the buffer; stored energy above the new capacity is lost.
func (e *EnergyStorage) SetCapacity(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	e.capacity = capacity
	if e.stored > capacity {
		e.stored = capacity
	}
}

func (e *EnergyStorage) SetStored(n int) {
	e.stored = clamp(n, 0, e.capacity)
}

// Change adds delta (negative drains) and returns the amount actually applied.
func (e *EnergyStorage) Change(delta int) int {
	before := e.stored
	e.stored = clamp(e.stored+delta, 0, e.capacity)
	return e.stored - before
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
