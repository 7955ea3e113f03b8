// Package visualization renders stored runs as matchup graphs.
package visualization

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/nvandessel/equilibria/internal/store"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// choiceColors colors agents by the choice their strategy favors. Games
// with more choices than colors wrap around.
var choiceColors = []string{
	"steelblue",
	"tomato",
	"mediumseagreen",
	"goldenrod",
	"orchid",
	"lightslategray",
}

// Node is an agent in the matchup graph.
type Node struct {
	ID            string  `json:"id"`
	Favored       string  `json:"favored"`
	Probability   float64 `json:"probability"`
	AveragePayoff float64 `json:"average_payoff"`
}

// Edge is one pairing. Choice names are the choice each side picked most
// often against the other.
type Edge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	Games        int    `json:"games"`
	SourceChoice string `json:"source_choice"`
	TargetChoice string `json:"target_choice"`
}

// Graph is the JSON form of a matchup graph.
type Graph struct {
	RunID     string `json:"run_id"`
	Game      string `json:"game"`
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
}

// BuildGraph collects the agents and pairings of a run.
func BuildGraph(run *store.Run) (*Graph, error) {
	names := run.Game.Choices
	if len(names) == 0 {
		return nil, fmt.Errorf("run %s has no choices", run.ID)
	}

	g := &Graph{
		RunID: run.ID,
		Game:  run.Game.Title,
		Nodes: make([]Node, 0, len(run.Agents)),
	}
	for _, a := range run.Agents {
		i := argmax(a.Strategy)
		if i >= len(names) {
			return nil, fmt.Errorf("agent %s has %d strategy components for %d choices", a.ID, len(a.Strategy), len(names))
		}
		g.Nodes = append(g.Nodes, Node{
			ID:            a.ID,
			Favored:       names[i],
			Probability:   a.Strategy[i],
			AveragePayoff: a.AveragePayoff,
		})
	}

	for _, key := range slices.Sorted(maps.Keys(run.Matchups)) {
		mc := run.Matchups[key]
		ai, bi := argmax(mc.A), argmax(mc.B)
		if ai >= len(names) || bi >= len(names) {
			return nil, fmt.Errorf("matchup %s has counts for unknown choices", key)
		}
		g.Edges = append(g.Edges, Edge{
			Source:       mc.AgentA,
			Target:       mc.AgentB,
			Games:        mc.Games,
			SourceChoice: names[ai],
			TargetChoice: names[bi],
		})
	}

	g.NodeCount = len(g.Nodes)
	g.EdgeCount = len(g.Edges)
	return g, nil
}

// RenderDOT produces an undirected Graphviz DOT graph of a run. Agents are
// colored by the choice they favor; each edge is labeled with the choices
// the pair settled on against each other.
func RenderDOT(run *store.Run) (string, error) {
	g, err := BuildGraph(run)
	if err != nil {
		return "", err
	}

	colorOf := make(map[string]string, len(run.Game.Choices))
	for i, name := range run.Game.Choices {
		colorOf[name] = choiceColors[i%len(choiceColors)]
	}

	var b strings.Builder
	b.WriteString("graph equilibria {\n")
	fmt.Fprintf(&b, "  label=%q;\n", truncate(g.Game, 60))
	b.WriteString("  layout=circo;\n")
	b.WriteString("  node [shape=circle, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, n := range g.Nodes {
		label := fmt.Sprintf("%s\n%s %.2f", n.ID, truncate(n.Favored, 12), n.Probability)
		fmt.Fprintf(&b, "  %q [label=%q, fillcolor=%q, tooltip=\"avg payoff %.3f\"];\n",
			n.ID, label, colorOf[n.Favored], n.AveragePayoff)
	}
	b.WriteString("\n")

	for _, e := range g.Edges {
		fmt.Fprintf(&b, "  %q -- %q [label=%q, tooltip=\"%d games\"];\n",
			e.Source, e.Target, e.SourceChoice+"/"+e.TargetChoice, e.Games)
	}

	b.WriteString("}\n")
	return b.String(), nil
}

// argmax returns the index of the largest value; ties go to the lowest index.
func argmax[T int | float64](values []T) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
