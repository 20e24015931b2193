package graph

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestWriteArtifacts_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	atoms := []string{"b/base", "l/lib", "a/app"}
	edges := []Edge{
		{From: "b/base", To: "l/lib", Kind: EdgeKindRuntime},
		{From: "l/lib", To: "a/app", Kind: EdgeKindRuntime},
	}
	g := buildGraph(t, atoms, edges)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := WriteArtifacts(g, dir, Sources{PackageList: "packages.txt"}, ts); err != nil {
		t.Fatalf("WriteArtifacts failed: %v", err)
	}

	order, err := os.ReadFile(filepath.Join(dir, OrderFileName))
	if err != nil {
		t.Fatalf("failed to read build order: %v", err)
	}
	if string(order) != "b/base\nl/lib\na/app\n" {
		t.Errorf("unexpected build order:\n%s", order)
	}

	waves, err := LoadWaves(filepath.Join(dir, WavesFileName))
	if err != nil {
		t.Fatalf("LoadWaves failed: %v", err)
	}
	if !reflect.DeepEqual(waves, g.Waves) {
		t.Errorf("waves did not round-trip: wrote %v, read %v", g.Waves, waves)
	}

	loaded, err := LoadEdges(filepath.Join(dir, GraphFileName))
	if err != nil {
		t.Fatalf("LoadEdges failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, g.Edges) {
		t.Errorf("edges did not round-trip: wrote %v, read %v", g.Edges, loaded)
	}
}

func TestWriteArtifacts_ByteIdentical(t *testing.T) {
	atoms := []string{"p/x", "p/y"}
	edges := []Edge{{From: "p/x", To: "p/y", Kind: EdgeKindBuild}}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	read := func(dir string) string {
		data, err := os.ReadFile(filepath.Join(dir, GraphFileName))
		if err != nil {
			t.Fatalf("failed to read artifact: %v", err)
		}
		return string(data)
	}

	dirA, dirB := t.TempDir(), t.TempDir()
	if err := WriteArtifacts(buildGraph(t, atoms, edges), dirA, Sources{}, ts); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteArtifacts(buildGraph(t, atoms, edges), dirB, Sources{}, ts); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	if read(dirA) != read(dirB) {
		t.Fatal("graph artifacts differ between identical runs")
	}
}

func TestLoadPackageList_SkipsCommentsAndBlanks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packages.txt")
	body := "# curated set\n\nsys-libs/glibc\n  dev-libs/openssl  \n# trailing comment\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write package list: %v", err)
	}

	atoms, err := LoadPackageList(path)
	if err != nil {
		t.Fatalf("LoadPackageList failed: %v", err)
	}
	want := []string{"sys-libs/glibc", "dev-libs/openssl"}
	if !reflect.DeepEqual(atoms, want) {
		t.Errorf("expected %v, got %v", want, atoms)
	}
}

func TestLoadTierMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.json")
	body := `{"tiers":[{"id":"tier1-core-infrastructure","packages":["sys-libs/glibc"]},{"id":"tier2-security-critical","packages":["dev-libs/openssl"]}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write tiers: %v", err)
	}

	tiers, err := LoadTierMap(path)
	if err != nil {
		t.Fatalf("LoadTierMap failed: %v", err)
	}
	if tiers["sys-libs/glibc"] != "tier1-core-infrastructure" {
		t.Errorf("unexpected tier map: %v", tiers)
	}
}
