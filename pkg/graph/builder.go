package graph

import (
	"errors"
	"fmt"
	"sort"
)

// Construction errors. All of them abort graph building before any output is
// produced.
var (
	ErrEmptyAtom     = errors.New("empty package atom")
	ErrDuplicateAtom = errors.New("duplicate package atom")
	ErrUnknownAtom   = errors.New("edge references unknown atom")
	ErrSelfEdge      = errors.New("self edge")
)

// Builder computes the dependency graph for a fixed package set. It assigns
// degrees, transitive reachability counts, strongly connected components,
// critical-path scores, and the wave partition.
type Builder struct {
	atoms    []string
	index    map[string]struct{}
	outgoing map[string]map[string]struct{}
	incoming map[string]map[string]struct{}
	kinds    map[Edge]struct{}

	estimate Estimator
}

// NewBuilder creates a builder for the given package set. The set is fixed:
// every edge added later must reference atoms in it.
func NewBuilder(atoms []string) (*Builder, error) {
	b := &Builder{
		atoms:    make([]string, 0, len(atoms)),
		index:    make(map[string]struct{}, len(atoms)),
		outgoing: make(map[string]map[string]struct{}, len(atoms)),
		incoming: make(map[string]map[string]struct{}, len(atoms)),
		kinds:    make(map[Edge]struct{}),
		estimate: DefaultEstimator,
	}

	for _, atom := range atoms {
		if atom == "" {
			return nil, ErrEmptyAtom
		}
		if _, exists := b.index[atom]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAtom, atom)
		}
		b.atoms = append(b.atoms, atom)
		b.index[atom] = struct{}{}
		b.outgoing[atom] = make(map[string]struct{})
		b.incoming[atom] = make(map[string]struct{})
	}

	return b, nil
}

// SetEstimator overrides the build-time estimator. The scoring and wave
// invariants do not depend on it.
func (b *Builder) SetEstimator(fn Estimator) {
	if fn != nil {
		b.estimate = fn
	}
}

// AddEdge records a directed dependency edge (from must build before to).
// Duplicate edges collapse; edges outside the package set and self edges are
// construction errors.
func (b *Builder) AddEdge(from, to string, kind EdgeKind) error {
	if _, ok := b.index[from]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAtom, from)
	}
	if _, ok := b.index[to]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAtom, to)
	}
	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfEdge, from)
	}

	b.outgoing[from][to] = struct{}{}
	b.incoming[to][from] = struct{}{}
	b.kinds[Edge{From: from, To: to, Kind: kind}] = struct{}{}
	return nil
}

// AddEdges records a batch of edges, stopping at the first invalid one.
func (b *Builder) AddEdges(edges []Edge) error {
	for _, e := range edges {
		if err := b.AddEdge(e.From, e.To, e.Kind); err != nil {
			return err
		}
	}
	return nil
}

// Build computes the final graph. An empty package set yields an empty graph.
func (b *Builder) Build(tiers map[string]string) (*Graph, error) {
	g := &Graph{
		Atoms: append([]string(nil), b.atoms...),
		Nodes: make(map[string]*Node, len(b.atoms)),
		Edges: b.sortedEdges(),
	}
	if len(b.atoms) == 0 {
		return g, nil
	}

	g.Waves, g.Order = computeWaves(b.atoms, b.outgoing, b.incoming)
	g.Components = computeComponents(b.atoms, b.outgoing, b.incoming)
	for _, c := range g.Components {
		if len(c) >= 2 {
			g.CycleCount++
		}
	}

	descendants := reachabilityCounts(b.atoms, b.outgoing)
	ancestors := reachabilityCounts(b.atoms, b.incoming)

	waveIndex := make(map[string]int, len(b.atoms))
	for i, wave := range g.Waves {
		for _, atom := range wave {
			waveIndex[atom] = i
		}
	}

	maxIn := 1
	for _, atom := range b.atoms {
		if d := len(b.incoming[atom]); d > maxIn {
			maxIn = d
		}
	}
	nMinus1 := len(b.atoms) - 1
	if nMinus1 < 1 {
		nMinus1 = 1
	}

	for _, atom := range b.atoms {
		tier := tiers[atom]
		if tier == "" {
			tier = "unknown"
		}
		inDeg := len(b.incoming[atom])
		blocked := descendants[atom]

		score := 0.7*(float64(blocked)/float64(nMinus1)) + 0.3*(float64(inDeg)/float64(maxIn))

		g.Nodes[atom] = &Node{
			Atom:                  atom,
			Tier:                  tier,
			InDegree:              inDeg,
			OutDegree:             len(b.outgoing[atom]),
			TransitiveDeps:        ancestors[atom],
			DependedByTransitive:  blocked,
			CriticalPathScore:     roundScore(score),
			BuildWave:             waveIndex[atom],
			EstimatedBuildMinutes: b.estimate(atom, tier),
		}
	}

	return g, nil
}

// sortedEdges returns the deduplicated edge set ordered by (from, to, kind).
func (b *Builder) sortedEdges() []Edge {
	edges := make([]Edge, 0, len(b.kinds))
	for e := range b.kinds {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Kind < edges[j].Kind
	})
	return edges
}

// reachabilityCounts computes, per atom, the size of the set reachable by
// following adjacency, excluding the atom itself.
func reachabilityCounts(atoms []string, adjacency map[string]map[string]struct{}) map[string]int {
	counts := make(map[string]int, len(atoms))
	for _, atom := range atoms {
		seen := make(map[string]struct{})
		stack := make([]string, 0, len(adjacency[atom]))
		for next := range adjacency[atom] {
			stack = append(stack, next)
		}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if cur == atom {
				continue
			}
			if _, ok := seen[cur]; ok {
				continue
			}
			seen[cur] = struct{}{}
			for next := range adjacency[cur] {
				stack = append(stack, next)
			}
		}
		counts[atom] = len(seen)
	}
	return counts
}

// computeComponents finds strongly connected components with two DFS passes:
// a post-order pass over the forward graph, then a reverse-graph walk in
// reverse finish order. Each component is returned sorted; the component list
// is ordered by first finish.
func computeComponents(
	atoms []string,
	outgoing map[string]map[string]struct{},
	incoming map[string]map[string]struct{},
) [][]string {
	visited := make(map[string]struct{}, len(atoms))
	postOrder := make([]string, 0, len(atoms))

	for _, root := range atoms {
		if _, ok := visited[root]; ok {
			continue
		}
		// Iterative DFS emitting nodes in post order.
		stack := []string{root}
		emitted := make(map[string]struct{})
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			visited[cur] = struct{}{}
			pushed := false
			for _, next := range sortedKeys(outgoing[cur]) {
				if _, ok := visited[next]; !ok {
					stack = append(stack, next)
					pushed = true
					break
				}
			}
			if pushed {
				continue
			}
			if _, ok := emitted[cur]; !ok {
				emitted[cur] = struct{}{}
				postOrder = append(postOrder, cur)
			}
			stack = stack[:len(stack)-1]
		}
	}

	assigned := make(map[string]struct{}, len(atoms))
	var components [][]string
	for i := len(postOrder) - 1; i >= 0; i-- {
		node := postOrder[i]
		if _, ok := assigned[node]; ok {
			continue
		}
		comp := []string{}
		stack := []string{node}
		assigned[node] = struct{}{}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, cur)
			for _, prev := range sortedKeys(incoming[cur]) {
				if _, ok := assigned[prev]; !ok {
					assigned[prev] = struct{}{}
					stack = append(stack, prev)
				}
			}
		}
		sort.Strings(comp)
		components = append(components, comp)
	}

	return components
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// roundScore keeps scores stable across runs and readable in artifacts.
func roundScore(score float64) float64 {
	return float64(int(score*10000+0.5)) / 10000
}
