package assembler

// lastUpdatedHeap is a container/heap min-heap over active traces,
// ordered by Trace.LastUpdated, so the Assembler can find (and evict)
// the stalest trace in O(log n) rather than a linear scan. Each entry
// tracks its own heap index so the Assembler can fix its position
// after every mutation.
type lastUpdatedHeap []*Trace

func (h lastUpdatedHeap) Len() int { return len(h) }

func (h lastUpdatedHeap) Less(i, j int) bool {
	return h[i].LastUpdated.Before(h[j].LastUpdated)
}

func (h lastUpdatedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *lastUpdatedHeap) Push(x any) {
	tr := x.(*Trace)
	tr.heapIndex = len(*h)
	*h = append(*h, tr)
}

func (h *lastUpdatedHeap) Pop() any {
	old := *h
	n := len(old)
	tr := old[n-1]
	old[n-1] = nil
	tr.heapIndex = -1
	*h = old[:n-1]
	return tr
}
