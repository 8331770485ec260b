package resource

import "sort"

// Tank holds a single fluid. An empty tank has no fluid identity.
type Tank struct {
	fluid    string
	amount   int
	capacity int

	// nil accepts any fluid.
	allowed map[string]bool
}

func NewTank(capacity int, allowed []string) *Tank {
	t := &Tank{}
	t.SetCapacity(capacity)
	t.SetAllowed(allowed)
	return t
}

func (t *Tank) Fluid() string { return t.fluid }
func (t *Tank) Amount() int   { return t.amount }
func (t *Tank) Capacity() int { return t.capacity }
func (t *Tank) IsEmpty() bool { return t.amount <= 0 || t.fluid == "" }
func (t *Tank) Space() int    { return t.capacity - t.amount }
func (t *Tank) IsFull() bool  { return t.amount >= t.capacity }

func (t *Tank) SetAllowed(allowed []string) {
	if len(allowed) == 0 {
		t.allowed = nil
		return
	}
	t.allowed = make(map[string]bool, len(allowed))
	for _, f := range allowed {
		t.allowed[f] = true
	}
}

// Allowed returns the accepted fluids, sorted, or nil when any fluid is accepted.
func (t *Tank) Allowed() []string {
	if t.allowed == nil {
		return nil
	}
	out := make([]string, 0, len(t.allowed))
	for f := range t.allowed {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (t *Tank) Accepts(fluid string) bool {
	if fluid == "" {
		return false
	}
	return t.allowed == nil || t.allowed[fluid]
}

// Matches reports whether fluid could be merged into the tank's current contents.
func (t *Tank) Matches(fluid string) bool {
	if !t.Accepts(fluid) {
		return false
	}
	return t.IsEmpty() || t.fluid == fluid
}

// SetCapacity resizes the tank; contents above the new capacity are lost.
func (t *Tank) SetCapacity(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	t.capacity = capacity
	if t.amount > capacity {
		t.amount = capacity
	}
	t.normalize()
}

// Set replaces the contents. An empty fluid or non-positive amount empties the tank.
func (t *Tank) Set(fluid string, amount int) {
	if fluid == "" || amount <= 0 {
		t.fluid, t.amount = "", 0
		return
	}
	t.fluid = fluid
	t.amount = clamp(amount, 0, t.capacity)
	t.normalize()
}

// Fill adds up to amount of fluid and returns how much was accepted.
func (t *Tank) Fill(fluid string, amount int) int {
	if amount <= 0 || !t.Matches(fluid) {
		return 0
	}
	n := amount
	if s := t.Space(); n > s {
		n = s
	}
	if n <= 0 {
		return 0
	}
	t.fluid = fluid
	t.amount += n
	return n
}

// Drain removes up to amount and returns how much was removed.
func (t *Tank) Drain(amount int) int {
	if amount <= 0 || t.IsEmpty() {
		return 0
	}
	n := amount
	if n > t.amount {
		n = t.amount
	}
	t.amount -= n
	t.normalize()
	return n
}

// Change adjusts the amount of the current fluid by delta and returns the applied delta.
func (t *Tank) Change(delta int) int {
	if t.fluid == "" {
		return 0
	}
	if delta < 0 {
		return -t.Drain(-delta)
	}
	return t.Fill(t.fluid, delta)
}

func (t *Tank) normalize() {
	if t.amount <= 0 {
		t.amount = 0
		t.fluid = ""
	}
}
