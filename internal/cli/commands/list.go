package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leapstack-labs/livetable/internal/cli/output"
	"github.com/leapstack-labs/livetable/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all models with their kind and initial shape",
		Long: `List every model declared in the configuration: sources first, then
views in declaration order, with their columns and initial row count.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # List all models (auto-detect output format)
  livetable list

  # List models as JSON
  livetable list --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd)
		},
	}

	return cmd
}

func runList(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	infos := modelInfos(cmdCtx.Pipeline.Nodes())
	r := cmdCtx.Renderer

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return listJSON(r, infos)
	case output.ModeMarkdown:
		listMarkdown(r, infos)
	default:
		listText(r, infos)
	}
	return nil
}

func modelInfos(nodes []*pipeline.Node) []output.ModelInfo {
	infos := make([]output.ModelInfo, 0, len(nodes))
	for _, n := range nodes {
		snap := n.Model.Snapshot()
		infos = append(infos, output.ModelInfo{
			Name:    n.Name,
			Kind:    n.Kind,
			From:    n.From,
			Columns: snap.Names(),
			Rows:    snap.Len(),
		})
	}
	return infos
}

// listText outputs models in styled text format.
func listText(r *output.Renderer, infos []output.ModelInfo) {
	styles := r.Styles()
	r.Header(1, fmt.Sprintf("Models (%d total)", len(infos)))

	for i, m := range infos {
		line := fmt.Sprintf("  %2d. %s %s", i+1, styles.ModelPath.Render(m.Name), styles.Muted.Render("["+m.Kind+"]"))
		if m.From != "" {
			line += styles.Muted.Render(" <- " + m.From)
		}
		r.Println(line)
		r.Printf("      %s %s\n", styles.Muted.Render("columns:"), strings.Join(m.Columns, ", "))
	}
}

// listMarkdown outputs models in markdown format.
func listMarkdown(r *output.Renderer, infos []output.ModelInfo) {
	r.Println(output.FormatHeader(1, fmt.Sprintf("Models (%d total)", len(infos))))
	r.Println("")

	for _, m := range infos {
		r.Println(output.FormatHeader(2, m.Name))
		r.Println(output.FormatKeyValue("Kind", m.Kind))
		if m.From != "" {
			r.Println(output.FormatKeyValue("From", m.From))
		}
		r.Println(output.FormatKeyValue("Columns", strings.Join(m.Columns, ", ")))
		r.Println(output.FormatKeyValue("Rows", fmt.Sprintf("%d", m.Rows)))
		r.Println("")
	}
}

// listJSON outputs models in JSON format.
func listJSON(r *output.Renderer, infos []output.ModelInfo) error {
	listOutput := output.ListOutput{
		Models: infos,
		Summary: output.ListSummary{
			TotalModels: len(infos),
			ByKind:      make(map[string]int),
		},
	}
	for _, m := range infos {
		listOutput.Summary.ByKind[m.Kind]++
	}

	enc := json.NewEncoder(r.Writer())
	enc.SetIndent("", "  ")
	return enc.Encode(listOutput)
}
