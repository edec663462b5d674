package queue

// productSeq numbers events per product starting at 1. Callers hold the lane lock.
type productSeq map[int64]uint64

func (s productSeq) next(productID int64) uint64 {
	s[productID]++
	return s[productID]
}

// laneFor maps a product to one of n lanes.
func laneFor(productID int64, n int) int {
	return int(uint64(productID) % uint64(n))
}
