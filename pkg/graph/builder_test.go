package graph

import (
	"errors"
	"testing"
)

func buildGraph(t *testing.T, atoms []string, edges []Edge) *Graph {
	t.Helper()

	b, err := NewBuilder(atoms)
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	if err := b.AddEdges(edges); err != nil {
		t.Fatalf("AddEdges failed: %v", err)
	}
	g, err := b.Build(nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g
}

func TestBuilder_EmptyPackageSet(t *testing.T) {
	g := buildGraph(t, nil, nil)

	if len(g.Nodes) != 0 {
		t.Errorf("expected 0 nodes, got %d", len(g.Nodes))
	}
	if len(g.Waves) != 0 {
		t.Errorf("expected 0 waves, got %d", len(g.Waves))
	}
	if g.CycleCount != 0 {
		t.Errorf("expected 0 cycles, got %d", g.CycleCount)
	}
}

func TestBuilder_DuplicateAtom(t *testing.T) {
	_, err := NewBuilder([]string{"a/x", "a/x"})
	if !errors.Is(err, ErrDuplicateAtom) {
		t.Fatalf("expected ErrDuplicateAtom, got %v", err)
	}
}

func TestBuilder_UnknownAtomEdge(t *testing.T) {
	b, err := NewBuilder([]string{"a/x"})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	if err := b.AddEdge("a/x", "a/missing", EdgeKindRuntime); !errors.Is(err, ErrUnknownAtom) {
		t.Errorf("expected ErrUnknownAtom for unknown target, got %v", err)
	}
	if err := b.AddEdge("a/missing", "a/x", EdgeKindRuntime); !errors.Is(err, ErrUnknownAtom) {
		t.Errorf("expected ErrUnknownAtom for unknown source, got %v", err)
	}
}

func TestBuilder_SelfEdge(t *testing.T) {
	b, err := NewBuilder([]string{"a/x"})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	if err := b.AddEdge("a/x", "a/x", EdgeKindBuild); !errors.Is(err, ErrSelfEdge) {
		t.Fatalf("expected ErrSelfEdge, got %v", err)
	}
}

func TestBuilder_DuplicateEdgesCollapse(t *testing.T) {
	b, err := NewBuilder([]string{"a/x", "a/y"})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := b.AddEdge("a/x", "a/y", EdgeKindRuntime); err != nil {
			t.Fatalf("AddEdge failed: %v", err)
		}
	}
	g, err := b.Build(nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(g.Edges) != 1 {
		t.Errorf("expected duplicate edges to collapse to 1, got %d", len(g.Edges))
	}
	if g.Nodes["a/y"].InDegree != 1 {
		t.Errorf("expected in-degree 1, got %d", g.Nodes["a/y"].InDegree)
	}
}

func TestBuilder_DegreesAndReachability(t *testing.T) {
	// x -> y -> z, x -> z
	g := buildGraph(t, []string{"a/x", "a/y", "a/z"}, []Edge{
		{From: "a/x", To: "a/y", Kind: EdgeKindRuntime},
		{From: "a/y", To: "a/z", Kind: EdgeKindRuntime},
		{From: "a/x", To: "a/z", Kind: EdgeKindBuild},
	})

	x, y, z := g.Nodes["a/x"], g.Nodes["a/y"], g.Nodes["a/z"]

	if x.OutDegree != 2 || x.InDegree != 0 {
		t.Errorf("x degrees: got out=%d in=%d", x.OutDegree, x.InDegree)
	}
	if z.InDegree != 2 || z.OutDegree != 0 {
		t.Errorf("z degrees: got out=%d in=%d", z.OutDegree, z.InDegree)
	}

	if x.DependedByTransitive != 2 {
		t.Errorf("x should unblock 2 packages, got %d", x.DependedByTransitive)
	}
	if z.TransitiveDeps != 2 {
		t.Errorf("z should have 2 transitive deps, got %d", z.TransitiveDeps)
	}
	if y.TransitiveDeps != 1 || y.DependedByTransitive != 1 {
		t.Errorf("y reachability: got deps=%d dependents=%d", y.TransitiveDeps, y.DependedByTransitive)
	}
}

func TestBuilder_CriticalPathScore(t *testing.T) {
	// x unblocks both y and z; z has the max in-degree.
	g := buildGraph(t, []string{"a/x", "a/y", "a/z"}, []Edge{
		{From: "a/x", To: "a/y", Kind: EdgeKindRuntime},
		{From: "a/y", To: "a/z", Kind: EdgeKindRuntime},
		{From: "a/x", To: "a/z", Kind: EdgeKindBuild},
	})

	// N-1 = 2, max in-degree = 2.
	// x: 0.7*(2/2) + 0.3*(0/2) = 0.7
	if got := g.Nodes["a/x"].CriticalPathScore; got != 0.7 {
		t.Errorf("x score: expected 0.7, got %v", got)
	}
	// z: 0.7*(0/2) + 0.3*(2/2) = 0.3
	if got := g.Nodes["a/z"].CriticalPathScore; got != 0.3 {
		t.Errorf("z score: expected 0.3, got %v", got)
	}
}

func TestBuilder_SingleNodeIsNotACycle(t *testing.T) {
	g := buildGraph(t, []string{"a/x", "a/y"}, []Edge{
		{From: "a/x", To: "a/y", Kind: EdgeKindRuntime},
	})

	if g.CycleCount != 0 {
		t.Errorf("expected no cycles, got %d", g.CycleCount)
	}
	if len(g.Components) != 2 {
		t.Errorf("expected 2 singleton components, got %d", len(g.Components))
	}
}

func TestBuilder_DetectsCycleComponents(t *testing.T) {
	g := buildGraph(t, []string{"a/x", "a/y", "a/z"}, []Edge{
		{From: "a/x", To: "a/y", Kind: EdgeKindRuntime},
		{From: "a/y", To: "a/x", Kind: EdgeKindRuntime},
	})

	if g.CycleCount != 1 {
		t.Fatalf("expected 1 cycle, got %d", g.CycleCount)
	}
	cycles := g.Cycles()
	if len(cycles) != 1 || len(cycles[0]) != 2 {
		t.Fatalf("expected one cycle of size 2, got %v", cycles)
	}
	if cycles[0][0] != "a/x" || cycles[0][1] != "a/y" {
		t.Errorf("cycle members should be sorted, got %v", cycles[0])
	}
}

func TestBuilder_TierAndEstimate(t *testing.T) {
	b, err := NewBuilder([]string{"sys-devel/gcc", "a/x"})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	g, err := b.Build(map[string]string{"a/x": "tier2-security-critical"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if g.Nodes["a/x"].Tier != "tier2-security-critical" {
		t.Errorf("unexpected tier: %s", g.Nodes["a/x"].Tier)
	}
	if g.Nodes["sys-devel/gcc"].Tier != "unknown" {
		t.Errorf("missing tier should map to unknown, got %s", g.Nodes["sys-devel/gcc"].Tier)
	}
	if g.Nodes["sys-devel/gcc"].EstimatedBuildMinutes != 18 {
		t.Errorf("heavy override not applied: %d", g.Nodes["sys-devel/gcc"].EstimatedBuildMinutes)
	}
	if g.Nodes["a/x"].EstimatedBuildMinutes != 6 {
		t.Errorf("tier default not applied: %d", g.Nodes["a/x"].EstimatedBuildMinutes)
	}
}

func TestBuilder_CustomEstimator(t *testing.T) {
	b, err := NewBuilder([]string{"a/x"})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	b.SetEstimator(func(atom, tier string) int { return 42 })
	g, err := b.Build(nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if g.Nodes["a/x"].EstimatedBuildMinutes != 42 {
		t.Errorf("custom estimator ignored: %d", g.Nodes["a/x"].EstimatedBuildMinutes)
	}
}
