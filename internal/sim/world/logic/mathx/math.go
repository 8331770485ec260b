package mathx

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

// FloorSpan returns the range of FloorDiv(x, b) for x in [lo, hi].
func FloorSpan(lo, hi, b int) (int, int) {
	return FloorDiv(lo, b), FloorDiv(hi, b)
}
