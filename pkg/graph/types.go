package graph

// EdgeKind distinguishes build-time from run-time dependencies.
type EdgeKind string

const (
	// EdgeKindBuild marks a dependency needed to compile the dependent package.
	EdgeKindBuild EdgeKind = "BDEPEND"

	// EdgeKindRuntime marks a dependency needed to run the dependent package.
	EdgeKindRuntime EdgeKind = "RDEPEND"
)

// Edge is a directed dependency edge: From must be built before To.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Node carries the computed per-package graph attributes.
type Node struct {
	// Atom is the opaque package identifier (e.g. "dev-libs/openssl").
	Atom string `json:"atom"`

	// Tier is an informational classification label.
	Tier string `json:"tier"`

	// InDegree is the number of direct dependencies.
	InDegree int `json:"in_degree"`

	// OutDegree is the number of direct dependents.
	OutDegree int `json:"out_degree"`

	// TransitiveDeps counts all packages reachable via incoming edges.
	TransitiveDeps int `json:"transitive_deps"`

	// DependedByTransitive counts all packages reachable via outgoing edges,
	// i.e. how much downstream work this package unblocks.
	DependedByTransitive int `json:"depended_by_transitive"`

	// CriticalPathScore blends downstream impact (70%) with direct fan-in (30%).
	CriticalPathScore float64 `json:"critical_path_score"`

	// BuildWave is the wave index assigned by the scheduler.
	BuildWave int `json:"build_wave"`

	// EstimatedBuildMinutes is a heuristic wall-clock estimate.
	EstimatedBuildMinutes int `json:"estimated_build_time_minutes"`
}

// Graph is the fully computed dependency graph for a fixed package set.
type Graph struct {
	// Atoms is the input package set in input order.
	Atoms []string

	// Nodes maps atom to its computed attributes.
	Nodes map[string]*Node

	// Edges is the deduplicated edge set, sorted by (from, to).
	Edges []Edge

	// Components lists strongly connected components, each sorted; a
	// component of size >= 2 is a cycle.
	Components [][]string

	// Waves is the ordered wave partition; atoms inside each wave are sorted.
	Waves [][]string

	// Order is the flattened build order (wave by wave).
	Order []string

	// CycleCount is the number of components of size >= 2. Callers must
	// inspect it: cyclic atoms are flushed into the final wave rather than
	// rejected.
	CycleCount int
}

// MaxInDegree returns the largest in-degree across all nodes.
func (g *Graph) MaxInDegree() int {
	max := 0
	for _, n := range g.Nodes {
		if n.InDegree > max {
			max = n.InDegree
		}
	}
	return max
}

// WaveIndex returns the wave assigned to atom, or -1 if unknown.
func (g *Graph) WaveIndex(atom string) int {
	n, ok := g.Nodes[atom]
	if !ok {
		return -1
	}
	return n.BuildWave
}

// Cycles returns only the components that form cycles (size >= 2).
func (g *Graph) Cycles() [][]string {
	var cycles [][]string
	for _, c := range g.Components {
		if len(c) >= 2 {
			cycles = append(cycles, c)
		}
	}
	return cycles
}
