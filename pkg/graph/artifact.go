package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SchemaVersion identifies the artifact document layout.
const SchemaVersion = "v1"

// Artifact file names written by WriteArtifacts.
const (
	GraphFileName = "dependency-graph.json"
	OrderFileName = "build-order.txt"
	WavesFileName = "build-waves.json"
)

// Metrics summarizes a graph document.
type Metrics struct {
	PackageCount          int     `json:"package_count"`
	EdgeCount             int     `json:"edge_count"`
	WaveCount             int     `json:"wave_count"`
	EstimatedTotalMinutes int     `json:"estimated_total_build_time_minutes"`
	EstimatedTotalHours   float64 `json:"estimated_total_build_time_hours"`
	ComponentCount        int     `json:"scc_count"`
	LargestComponentSize  int     `json:"largest_scc_size"`
	CycleCount            int     `json:"cycle_count"`
}

// Sources records where the graph inputs came from.
type Sources struct {
	PackageList  string `json:"package_list"`
	EdgeList     string `json:"edge_list,omitempty"`
	PackageTiers string `json:"package_tiers,omitempty"`
}

// Document is the on-disk dependency-graph artifact. It is the contract
// between the graph stage and the build executor, and is kept diffable:
// identical inputs serialize to identical bytes (modulo GeneratedAt, which
// callers pin for reproducible output).
type Document struct {
	SchemaVersion string     `json:"schema_version"`
	GeneratedAt   string     `json:"generated_at"`
	Sources       Sources    `json:"sources"`
	Metrics       Metrics    `json:"metrics"`
	Nodes         []Node     `json:"nodes"`
	Edges         []Edge     `json:"edges"`
	Components    [][]string `json:"strongly_connected_components"`
	BuildOrder    []string   `json:"build_order"`
	BuildWaves    [][]string `json:"build_waves"`
}

// WaveEntry is one wave in the waves artifact.
type WaveEntry struct {
	Wave     int      `json:"wave"`
	Count    int      `json:"count"`
	Packages []string `json:"packages"`
}

// WavesDocument is the on-disk build-waves artifact.
type WavesDocument struct {
	SchemaVersion string      `json:"schema_version"`
	GeneratedAt   string      `json:"generated_at"`
	WaveCount     int         `json:"wave_count"`
	Waves         []WaveEntry `json:"waves"`
}

// NewDocument assembles the artifact document from a computed graph. Nodes
// appear in build order so the document is stable across runs.
func NewDocument(g *Graph, sources Sources, generatedAt time.Time) *Document {
	doc := &Document{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   generatedAt.UTC().Format(time.RFC3339),
		Sources:       sources,
		Edges:         append([]Edge(nil), g.Edges...),
		Components:    append([][]string(nil), g.Components...),
		BuildOrder:    append([]string(nil), g.Order...),
		BuildWaves:    append([][]string(nil), g.Waves...),
	}

	totalMinutes := 0
	largest := 0
	for _, c := range g.Components {
		if len(c) > largest {
			largest = len(c)
		}
	}
	for _, atom := range g.Order {
		node := g.Nodes[atom]
		doc.Nodes = append(doc.Nodes, *node)
		totalMinutes += node.EstimatedBuildMinutes
	}

	doc.Metrics = Metrics{
		PackageCount:          len(g.Atoms),
		EdgeCount:             len(g.Edges),
		WaveCount:             len(g.Waves),
		EstimatedTotalMinutes: totalMinutes,
		EstimatedTotalHours:   float64(int(float64(totalMinutes)/60.0*100+0.5)) / 100,
		ComponentCount:        len(g.Components),
		LargestComponentSize:  largest,
		CycleCount:            g.CycleCount,
	}

	return doc
}

// NewWavesDocument assembles the waves artifact from a computed graph.
func NewWavesDocument(g *Graph, generatedAt time.Time) *WavesDocument {
	doc := &WavesDocument{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   generatedAt.UTC().Format(time.RFC3339),
		WaveCount:     len(g.Waves),
	}
	for i, wave := range g.Waves {
		doc.Waves = append(doc.Waves, WaveEntry{
			Wave:     i,
			Count:    len(wave),
			Packages: append([]string(nil), wave...),
		})
	}
	return doc
}

// WriteArtifacts writes the graph document, the flat build order, and the
// waves document into dir.
func WriteArtifacts(g *Graph, dir string, sources Sources, generatedAt time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}

	doc := NewDocument(g, sources, generatedAt)
	if err := writeJSON(filepath.Join(dir, GraphFileName), doc); err != nil {
		return err
	}

	order := strings.Join(doc.BuildOrder, "\n")
	if order != "" {
		order += "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, OrderFileName), []byte(order), 0o644); err != nil {
		return fmt.Errorf("failed to write build order: %w", err)
	}

	return writeJSON(filepath.Join(dir, WavesFileName), NewWavesDocument(g, generatedAt))
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
