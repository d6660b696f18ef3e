// Package chunk provides transaction-size-bounded batching for DynamoDB writes.
package chunk

// Split partitions items into consecutive batches of at most size elements.
// Order is preserved within and across batches. A size below 1 is treated as 1.
// The returned batches alias the input slice.
func Split[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	if len(items) == 0 {
		return nil
	}

	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
