package graph

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// edgeDocument matches both the standalone edge list and the full graph
// artifact; only the edges field is consumed here.
type edgeDocument struct {
	Edges []Edge `json:"edges"`
}

// tierDocument is the tier metadata input produced upstream.
type tierDocument struct {
	Tiers []struct {
		ID       string   `json:"id"`
		Packages []string `json:"packages"`
	} `json:"tiers"`
}

// LoadPackageList reads one atom per line, skipping blanks and '#' comments.
func LoadPackageList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open package list: %w", err)
	}
	defer f.Close()

	var atoms []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		atoms = append(atoms, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read package list: %w", err)
	}
	return atoms, nil
}

// LoadEdges reads the dependency-edge document. It accepts either the
// standalone edge list or a full dependency-graph artifact.
func LoadEdges(path string) ([]Edge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read edge document: %w", err)
	}
	var doc edgeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse edge document: %w", err)
	}

	edges := make([]Edge, 0, len(doc.Edges))
	for _, e := range doc.Edges {
		e.From = strings.TrimSpace(e.From)
		e.To = strings.TrimSpace(e.To)
		if e.From == "" || e.To == "" {
			continue
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// LoadTierMap reads tier metadata and returns atom -> tier id.
func LoadTierMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tier metadata: %w", err)
	}
	var doc tierDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse tier metadata: %w", err)
	}

	tiers := make(map[string]string)
	for _, tier := range doc.Tiers {
		for _, atom := range tier.Packages {
			tiers[atom] = tier.ID
		}
	}
	return tiers, nil
}

// LoadDocument reads a full dependency-graph artifact.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph artifact: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse graph artifact: %w", err)
	}
	return &doc, nil
}

// LoadWaves reads the build-waves artifact and returns the wave partition.
// Empty waves are dropped.
func LoadWaves(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wave document: %w", err)
	}
	var doc WavesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse wave document: %w", err)
	}

	var waves [][]string
	for _, entry := range doc.Waves {
		var atoms []string
		for _, atom := range entry.Packages {
			if atom = strings.TrimSpace(atom); atom != "" {
				atoms = append(atoms, atom)
			}
		}
		if len(atoms) > 0 {
			waves = append(waves, atoms)
		}
	}
	return waves, nil
}
