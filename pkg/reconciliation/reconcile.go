// FILE: pkg/reconciliation/reconciler.go

// Package reconciliation merges an incoming batch of keyed items into an
// existing ordered set. It backs "update" on stores that have no in-place
// update primitive and must rewrite their whole content.
package reconciliation

// Latest collapses items sharing a key to the last one given, keeping the
// position of the first occurrence.
func Latest[T any, K comparable](items []T, key func(T) K) []T {
	index := make(map[K]int, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := key(item)
		if i, ok := index[k]; ok {
			out[i] = item
			continue
		}
		index[k] = len(out)
		out = append(out, item)
	}
	return out
}

// Result is the outcome of a merge.
type Result[T any] struct {
	// Items is the full merged set, in stored order followed by upserts.
	Items []T
	// Replaced counts existing items that were substituted.
	Replaced int
	// Inserted counts incoming items appended because upsert was set.
	Inserted int
	// Dropped counts incoming items that matched nothing and were discarded.
	Dropped int
}

// Merge walks existing in order. An existing item whose key appears in
// incoming is substituted by replace(existing, incoming) and that incoming
// entry is consumed; other existing items are kept unchanged. Incoming items
// never consumed are appended, in their first-seen order, only when upsert is
// true. The result is deterministic for a given input.
func Merge[T any, K comparable](existing, incoming []T, key func(T) K, replace func(stored, incoming T) T, upsert bool) Result[T] {
	pending := Latest(incoming, key)
	byKey := make(map[K]T, len(pending))
	for _, item := range pending {
		byKey[key(item)] = item
	}

	res := Result[T]{Items: make([]T, 0, len(existing)+len(pending))}
	for _, item := range existing {
		k := key(item)
		in, ok := byKey[k]
		if !ok {
			res.Items = append(res.Items, item)
			continue
		}
		delete(byKey, k)
		res.Items = append(res.Items, replace(item, in))
		res.Replaced++
	}

	for _, item := range pending {
		if _, unconsumed := byKey[key(item)]; !unconsumed {
			continue
		}
		if upsert {
			res.Items = append(res.Items, item)
			res.Inserted++
		} else {
			res.Dropped++
		}
	}
	return res
}
