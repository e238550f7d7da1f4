package graph

import (
	"path/filepath"
	"strings"
)

// Node represents one stored procedure file occurrence in the call graph.
// A node is owned by its parent; the same procedure may appear on several
// branches, but never twice on one root-to-leaf path.
type Node struct {
	FilePath     string  `json:"file"`                // 解析后的 SQL 文件路径
	CycleClosure bool    `json:"cycle,omitempty"`     // 指回祖先节点的循环引用
	ClosesTo     string  `json:"closes_to,omitempty"` // 循环指向的祖先文件名
	Children     []*Node `json:"children,omitempty"`  // 按 exec 出现顺序

	parent *Node
	depth  int
}

// Name returns the base file name of the node, e.g. "usp_Load.sql".
func (n *Node) Name() string {
	return filepath.Base(n.FilePath)
}

// Procedure returns the file name without its .sql suffix.
func (n *Node) Procedure() string {
	name := n.Name()
	if strings.HasSuffix(strings.ToLower(name), ".sql") {
		return name[:len(name)-len(".sql")]
	}
	return name
}

// Target returns the file name this node stands for: the ancestor a cycle
// closure points back to, or the node's own name.
func (n *Node) Target() string {
	if n.CycleClosure && n.ClosesTo != "" {
		return n.ClosesTo
	}
	return n.Name()
}

// Parent returns the calling node, or nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Depth returns the distance from the root (root is 0).
func (n *Node) Depth() int {
	return n.depth
}

// AddChild attaches child under n and fixes up its parent and depth.
// Used when a tree is rebuilt from storage.
func (n *Node) AddChild(child *Node) {
	child.parent = n
	child.depth = n.depth + 1
	n.Children = append(n.Children, child)
}

// findAncestor returns n or the nearest node above it with the given file
// name, or nil. Comparison is case-insensitive.
func (n *Node) findAncestor(fileName string) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if strings.EqualFold(cur.Name(), fileName) {
			return cur
		}
	}
	return nil
}
