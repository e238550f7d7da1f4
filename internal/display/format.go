package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/storage"
)

// CycleMarker is appended to nodes that close a cycle
const CycleMarker = "(circular reference)"

var (
	rootStyle  = lipgloss.NewStyle().Bold(true)
	cycleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F4D03F"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2C4A54"))
)

// TreeStyle controls how trees are rendered
type TreeStyle struct {
	Color bool // 终端输出时着色
}

func (s TreeStyle) render(style lipgloss.Style, text string) string {
	if !s.Color {
		return text
	}
	return style.Render(text)
}

func (s TreeStyle) label(n *graph.Node) string {
	if n.CycleClosure {
		return n.Name() + " " + s.render(cycleStyle, CycleMarker)
	}
	return n.Name()
}

// FormatTree renders a call tree with box-drawing characters, one line per node.
func FormatTree(root *graph.Node, style TreeStyle) string {
	if root == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(style.render(rootStyle, root.Name()))
	sb.WriteString("\n")
	formatChildren(&sb, root.Children, "", style)
	return sb.String()
}

func formatChildren(sb *strings.Builder, children []*graph.Node, indent string, style TreeStyle) {
	for i, node := range children {
		isLast := i == len(children)-1
		prefix := "├──"
		if isLast {
			prefix = "└──"
		}

		sb.WriteString(fmt.Sprintf("%s%s %s\n", indent, style.render(mutedStyle, prefix), style.label(node)))

		if len(node.Children) > 0 {
			childIndent := indent + "│   "
			if isLast {
				childIndent = indent + "    "
			}
			formatChildren(sb, node.Children, childIndent, style)
		}
	}
}

// FormatIndentedTree renders the tree with one tab per level and "->" before
// each child, e.g.
//
//	A.sql
//		-> B.sql
//			-> A.sql (circular reference)
func FormatIndentedTree(root *graph.Node, style TreeStyle) string {
	if root == nil {
		return ""
	}
	var sb strings.Builder
	graph.Walk(root, func(n *graph.Node) {
		if n.Parent() != nil {
			sb.WriteString(strings.Repeat("\t", n.Depth()))
			sb.WriteString("-> ")
		}
		sb.WriteString(style.label(n))
		sb.WriteString("\n")
	})
	return sb.String()
}

// FormatList renders one item per line
func FormatList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return strings.Join(items, "\n") + "\n"
}

// FormatCallPaths renders each path as "A.sql -> B.sql -> C.sql"
func FormatCallPaths(paths [][]string) string {
	var sb strings.Builder
	for _, p := range paths {
		sb.WriteString(strings.Join(p, " -> "))
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatRuns renders saved runs as a table
func FormatRuns(runs []*storage.Run) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Kind", "Root", "Functions Dir", "Nodes", "Functions", "Created"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID,
			r.Kind,
			r.Root,
			r.FunctionsDir,
			r.Nodes,
			r.Functions,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return t.Render() + "\n"
}

// FormatStats renders a one-line tree summary
func FormatStats(s graph.TreeStats) string {
	return fmt.Sprintf("%d nodes, %d procedures, %d circular references, max depth %d",
		s.Nodes, s.Procedures, s.Closures, s.MaxDepth)
}
