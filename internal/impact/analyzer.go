package impact

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/storage"
)

// ErrProcedureNotFound is returned when the procedure does not occur in the tree
var ErrProcedureNotFound = errors.New("procedure not found in tree")

// Analyzer performs impact analysis on saved call trees
type Analyzer struct {
	db *storage.DB
}

// NewAnalyzer creates a new impact analyzer
func NewAnalyzer(db *storage.DB) *Analyzer {
	return &Analyzer{db: db}
}

// ImpactReport describes who reaches a procedure and what it reaches
type ImpactReport struct {
	Target          string     `json:"target"`
	Occurrences     int        `json:"occurrences"`
	Paths           [][]string `json:"paths"`
	DirectCallers   []string   `json:"direct_callers"`
	IndirectCallers []string   `json:"indirect_callers"`
	DirectCallees   []string   `json:"direct_callees"`
	IndirectCallees []string   `json:"indirect_callees"`
}

// AnalyzeImpact loads the tree of a saved run and analyzes one procedure in it
func (a *Analyzer) AnalyzeImpact(runID int64, procedure string) (*ImpactReport, error) {
	root, err := a.db.LoadTree(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %d: %w", runID, err)
	}

	report, err := Analyze(root, procedure)
	if err != nil {
		return nil, err
	}

	report.Paths, err = a.db.GetCallPaths(runID, procedure)
	if err != nil {
		return nil, fmt.Errorf("failed to get call paths: %w", err)
	}
	return report, nil
}

// Analyze collects callers and callees of every occurrence of procedure in
// the tree. The name may be given with or without the .sql suffix.
func Analyze(root *graph.Node, procedure string) (*ImpactReport, error) {
	target := trimSQL(procedure)
	report := &ImpactReport{Target: target}

	directCallers := newNameSet()
	indirectCallers := newNameSet()
	directCallees := newNameSet()
	indirectCallees := newNameSet()

	graph.Walk(root, func(n *graph.Node) {
		// cycle closures count as an occurrence of the ancestor they close to
		if !strings.EqualFold(trimSQL(n.Target()), target) {
			return
		}
		report.Occurrences++

		if p := n.Parent(); p != nil {
			directCallers.add(p.Name())
			for up := p.Parent(); up != nil; up = up.Parent() {
				indirectCallers.add(up.Name())
			}
		}

		for _, c := range n.Children {
			directCallees.add(c.Target())
			for _, gc := range c.Children {
				graph.Walk(gc, func(d *graph.Node) {
					indirectCallees.add(d.Target())
				})
			}
		}
	})

	if report.Occurrences == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProcedureNotFound, procedure)
	}

	report.DirectCallers = directCallers.list()
	report.IndirectCallers = indirectCallers.without(directCallers)
	report.DirectCallees = directCallees.list()
	report.IndirectCallees = indirectCallees.without(directCallees)
	return report, nil
}

func trimSQL(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".sql") {
		return name[:len(name)-len(".sql")]
	}
	return name
}

// nameSet keeps first-seen order and compares case-insensitively
type nameSet struct {
	names []string
	seen  map[string]bool
}

func newNameSet() *nameSet {
	return &nameSet{seen: make(map[string]bool)}
}

func (s *nameSet) add(name string) {
	key := strings.ToLower(name)
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.names = append(s.names, name)
}

func (s *nameSet) has(name string) bool {
	return s.seen[strings.ToLower(name)]
}

func (s *nameSet) list() []string {
	return s.names
}

func (s *nameSet) without(other *nameSet) []string {
	var out []string
	for _, n := range s.names {
		if !other.has(n) {
			out = append(out, n)
		}
	}
	return out
}

// FormatMarkdown formats the impact report as markdown
func (r *ImpactReport) FormatMarkdown() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## 变更影响分析: %s\n\n", r.Target))
	sb.WriteString(fmt.Sprintf("**出现次数:** %d\n\n", r.Occurrences))

	if len(r.Paths) > 0 {
		sb.WriteString("### 调用路径\n\n")
		for _, p := range r.Paths {
			sb.WriteString(fmt.Sprintf("- %s\n", strings.Join(p, " → ")))
		}
		sb.WriteString("\n")
	}

	writeSection(&sb, "直接调用者 (需检查是否需要同步修改)", "_无直接调用者_", r.DirectCallers)
	if len(r.IndirectCallers) > 0 {
		writeSection(&sb, "间接调用者 (可能受影响)", "", r.IndirectCallers)
	}
	writeSection(&sb, "下游依赖 (本过程调用的)", "_无下游依赖_", r.DirectCallees)
	if len(r.IndirectCallees) > 0 {
		writeSection(&sb, "间接下游依赖", "", r.IndirectCallees)
	}

	return sb.String()
}

func writeSection(sb *strings.Builder, title, empty string, names []string) {
	sb.WriteString("### " + title + "\n\n")
	if len(names) == 0 {
		sb.WriteString(empty + "\n\n")
		return
	}
	sb.WriteString("| 存储过程 |\n")
	sb.WriteString("|------|\n")
	for _, n := range names {
		sb.WriteString(fmt.Sprintf("| %s |\n", n))
	}
	sb.WriteString("\n")
}

// FormatTree formats the impact report as a tree structure
func (r *ImpactReport) FormatTree() string {
	var sb strings.Builder

	sb.WriteString("📍 当前过程\n")
	sb.WriteString(fmt.Sprintf("%s (出现 %d 次)\n\n", r.Target, r.Occurrences))

	callers := append(append([]string{}, r.DirectCallers...), r.IndirectCallers...)
	writeBranch(&sb, "⬆️ 调用者", callers)
	sb.WriteString("\n")

	callees := append(append([]string{}, r.DirectCallees...), r.IndirectCallees...)
	writeBranch(&sb, "⬇️ 被调用", callees)

	return sb.String()
}

func writeBranch(sb *strings.Builder, title string, names []string) {
	if len(names) == 0 {
		sb.WriteString(title + "\n")
		sb.WriteString("└── (无)\n")
		return
	}
	sb.WriteString(fmt.Sprintf("%s (共 %d 个)\n", title, len(names)))
	for i, n := range names {
		prefix := "├──"
		if i == len(names)-1 {
			prefix = "└──"
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", prefix, n))
	}
}

// Summary returns a brief summary of the impact report
func (r *ImpactReport) Summary() string {
	return fmt.Sprintf(
		"Target: %s, Occurrences: %d, Direct Callers: %d, Indirect Callers: %d, Direct Callees: %d, Indirect Callees: %d",
		r.Target,
		r.Occurrences,
		len(r.DirectCallers),
		len(r.IndirectCallers),
		len(r.DirectCallees),
		len(r.IndirectCallees),
	)
}
