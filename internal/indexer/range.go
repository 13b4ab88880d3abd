package indexer

import "fmt"

// Window is an inclusive block range scanned as one unit.
type Window struct {
	From uint64
	To   uint64
}

// Size returns the number of blocks in w.
func (w Window) Size() uint64 {
	return w.To - w.From + 1
}

// SplitWindows splits [from, to] into contiguous windows of size blocks; the last may be shorter.
func SplitWindows(from, to, size uint64) ([]Window, error) {
	if size == 0 {
		return nil, fmt.Errorf("chunk size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("end block %d is before start block %d", to, from)
	}

	windows := make([]Window, 0)
	start := from
	for {
		end := to
		if to-start >= size {
			end = start + size - 1
		}
		windows = append(windows, Window{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return windows, nil
}
