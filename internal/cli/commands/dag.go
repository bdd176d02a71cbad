package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leapstack-labs/livetable/internal/cli/output"
	"github.com/leapstack-labs/livetable/internal/pipeline"
	"github.com/spf13/cobra"
)

// DerivationGraph is the part of a pipeline the dag command reads.
type DerivationGraph interface {
	Levels() ([][]string, error)
	Nodes() []*pipeline.Node
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dag",
		Short: "Show the derivation graph",
		Long: `Display every model grouped by derivation level.

Level 0 holds the sources. A view sits one level below the model it
derives from and is recomputed whenever that model updates.`,
		Example: `  # Show the graph
  livetable dag

  # Output as JSON
  livetable dag --output json

  # Output as Markdown
  livetable dag --output markdown`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd)
		},
	}
}

func runDAG(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	dag, err := buildDAG(cmdCtx.Pipeline)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		enc := json.NewEncoder(r.Writer())
		enc.SetIndent("", "  ")
		return enc.Encode(dag)
	case output.ModeMarkdown:
		dagMarkdown(r, dag)
	default:
		dagText(r, dag)
	}
	return nil
}

// buildDAG lays out the nodes of g by level, with their current shape.
func buildDAG(g DerivationGraph) (output.DAGOutput, error) {
	levels, err := g.Levels()
	if err != nil {
		return output.DAGOutput{}, fmt.Errorf("failed to get derivation levels: %w", err)
	}

	nodes := g.Nodes()
	byName := make(map[string]*pipeline.Node, len(nodes))
	children := make(map[string][]string)
	for _, n := range nodes {
		byName[n.Name] = n
		if n.From != "" {
			children[n.From] = append(children[n.From], n.Name)
		}
	}

	out := output.DAGOutput{
		Levels:      make([]output.DAGLevel, 0, len(levels)),
		TotalModels: len(nodes),
	}
	for i, names := range levels {
		level := output.DAGLevel{Level: i, Models: make([]output.DAGNode, 0, len(names))}
		for _, name := range names {
			n, ok := byName[name]
			if !ok {
				continue
			}
			node := output.DAGNode{Name: n.Name, Kind: n.Kind, From: n.From, UsedBy: children[n.Name], Columns: []string{}}
			if n.Model != nil {
				snap := n.Model.Snapshot()
				node.Columns = snap.Names()
				node.Rows = snap.Len()
			}
			if n.From != "" {
				out.TotalDerivations++
			}
			level.Models = append(level.Models, node)
		}
		out.Levels = append(out.Levels, level)
	}
	return out, nil
}

func dagText(r *output.Renderer, dag output.DAGOutput) {
	styles := r.Styles()
	r.Header(1, "Derivation Graph")

	for _, level := range dag.Levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", level.Level)))
		for _, n := range level.Models {
			r.Printf("  %s %s\n", styles.ModelPath.Render(n.Name),
				styles.Muted.Render(fmt.Sprintf("(%s, %d rows)", n.Kind, n.Rows)))
			if n.From != "" {
				r.Printf("    %s %s\n", styles.Muted.Render("derived from:"), n.From)
			}
			if len(n.UsedBy) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(n.UsedBy, ", "))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d models, %d derivations", dag.TotalModels, dag.TotalDerivations)))
}

func dagMarkdown(r *output.Renderer, dag output.DAGOutput) {
	r.Println(output.FormatHeader(1, "Derivation Graph"))
	r.Println("")

	for _, level := range dag.Levels {
		title := fmt.Sprintf("Level %d", level.Level)
		if level.Level == 0 {
			title += " (Sources)"
		}
		r.Println(output.FormatHeader(2, title))
		for _, n := range level.Models {
			r.Printf("- %s (%s, %d rows)\n", n.Name, n.Kind, n.Rows)
			if n.From != "" {
				r.Printf("  - derived from: %s\n", n.From)
			}
			if len(n.UsedBy) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(n.UsedBy, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Models", fmt.Sprintf("%d", dag.TotalModels)))
	r.Println(output.FormatKeyValue("Total Derivations", fmt.Sprintf("%d", dag.TotalDerivations)))
}
