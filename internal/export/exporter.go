package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zheng/sprocmap/internal/display"
	"github.com/zheng/sprocmap/internal/graph"
)

// Exporter generates a Markdown report for a call tree
type Exporter struct {
	now func() time.Time
}

// NewExporter creates a new exporter
func NewExporter() *Exporter {
	return &Exporter{now: time.Now}
}

// ExportOptions configures the export behavior
type ExportOptions struct {
	IncludeMermaid bool
	Title          string
}

// DefaultExportOptions returns default export options
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		IncludeMermaid: true,
		Title:          "存储过程调用树",
	}
}

// Report is the data rendered by Export. Functions is nil when no inventory
// was computed.
type Report struct {
	Tree      *graph.Node
	Functions []string
}

// Export writes the Markdown report
func (e *Exporter) Export(w io.Writer, r Report, opts ExportOptions) error {
	if r.Tree == nil {
		return fmt.Errorf("nothing to export: empty tree")
	}

	stats := graph.Stats(r.Tree)

	fmt.Fprintf(w, "# %s: %s\n\n", opts.Title, r.Tree.Name())
	fmt.Fprintf(w, "> 生成时间: %s\n", e.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "> %s\n\n", display.FormatStats(stats))

	fmt.Fprintf(w, "## 调用树\n\n```\n%s```\n\n", display.FormatTree(r.Tree, display.TreeStyle{}))

	fmt.Fprintf(w, "## 涉及的存储过程\n\n")
	for _, name := range graph.DistinctNames(r.Tree) {
		fmt.Fprintf(w, "- `%s`\n", name)
	}
	fmt.Fprintln(w)

	if opts.IncludeMermaid {
		e.writeMermaid(w, r.Tree)
	}

	if r.Functions != nil {
		fmt.Fprintf(w, "## 仅在调用树内使用的函数\n\n")
		if len(r.Functions) == 0 {
			fmt.Fprintf(w, "_无_\n\n")
		}
		for _, fn := range r.Functions {
			fmt.Fprintf(w, "- `%s`\n", fn)
		}
		if len(r.Functions) > 0 {
			fmt.Fprintln(w)
		}
	}

	return nil
}

// writeMermaid writes a flowchart of the distinct caller -> callee edges.
// Circular references are drawn as dashed edges.
func (e *Exporter) writeMermaid(w io.Writer, root *graph.Node) {
	fmt.Fprintf(w, "## 调用关系图\n\n```mermaid\nflowchart TD\n")

	ids := make(map[string]string)
	nodeID := func(name string) string {
		key := strings.ToLower(name)
		if id, ok := ids[key]; ok {
			return id
		}
		id := fmt.Sprintf("n%d", len(ids))
		ids[key] = id
		fmt.Fprintf(w, "    %s[\"%s\"]\n", id, mermaidEscape(name))
		return id
	}

	nodeID(root.Name())
	for _, edge := range graph.Edges(root) {
		from := nodeID(edge.From)
		to := nodeID(edge.To)
		if edge.Kind == graph.EdgeKindCycle {
			fmt.Fprintf(w, "    %s -.->|cycle| %s\n", from, to)
		} else {
			fmt.Fprintf(w, "    %s --> %s\n", from, to)
		}
	}

	fmt.Fprintf(w, "```\n\n")
}

func mermaidEscape(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}
