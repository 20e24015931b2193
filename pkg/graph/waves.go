package graph

import "sort"

// computeWaves partitions atoms into build waves using an in-degree-zero
// frontier (Kahn's algorithm). Every atom in a wave has all of its
// dependencies in strictly earlier waves. Atoms stuck inside a cycle are
// flushed, sorted, as one trailing wave; this is a documented fallback rather
// than an error, so callers can tolerate known cyclic subsets.
//
// Output is fully deterministic: atoms within a wave are lexicographic, so
// identical inputs always produce byte-identical wave artifacts.
func computeWaves(
	atoms []string,
	outgoing map[string]map[string]struct{},
	incoming map[string]map[string]struct{},
) (waves [][]string, order []string) {
	indeg := make(map[string]int, len(atoms))
	remaining := make(map[string]struct{}, len(atoms))
	for _, atom := range atoms {
		indeg[atom] = len(incoming[atom])
		remaining[atom] = struct{}{}
	}

	current := make([]string, 0)
	for _, atom := range atoms {
		if indeg[atom] == 0 {
			current = append(current, atom)
		}
	}
	sort.Strings(current)

	for len(current) > 0 {
		waves = append(waves, current)

		next := make(map[string]struct{})
		for _, atom := range current {
			delete(remaining, atom)
			order = append(order, atom)
			for child := range outgoing[atom] {
				indeg[child]--
				if indeg[child] == 0 {
					next[child] = struct{}{}
				}
			}
		}
		current = sortedKeys(next)
	}

	// Cycle fallback: whatever the frontier never reached goes into one
	// final deterministic wave.
	if len(remaining) > 0 {
		cycleWave := sortedKeys(remaining)
		waves = append(waves, cycleWave)
		order = append(order, cycleWave...)
	}

	return waves, order
}
