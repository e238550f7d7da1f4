package graph

import (
	"path/filepath"
	"strings"
)

// Walk visits every node in pre-order
func Walk(root *Node, fn func(*Node)) {
	if root == nil {
		return
	}
	fn(root)
	for _, child := range root.Children {
		Walk(child, fn)
	}
}

// PathKey normalizes a file path for case-insensitive identity checks
func PathKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return strings.ToLower(filepath.Clean(path))
}

// DistinctFiles returns the distinct loaded files in the tree, first-seen
// order. Cycle closure nodes are skipped because they are never loaded.
func DistinctFiles(root *Node) []string {
	var files []string
	seen := make(map[string]bool)

	Walk(root, func(n *Node) {
		if n.CycleClosure {
			return
		}
		key := PathKey(n.FilePath)
		if seen[key] {
			return
		}
		seen[key] = true
		files = append(files, n.FilePath)
	})

	return files
}

// DistinctNames returns the distinct procedure file names in the tree
func DistinctNames(root *Node) []string {
	var names []string
	seen := make(map[string]bool)

	Walk(root, func(n *Node) {
		if n.CycleClosure {
			return
		}
		key := strings.ToLower(n.Name())
		if seen[key] {
			return
		}
		seen[key] = true
		names = append(names, n.Name())
	})

	return names
}

// TreeStats summarizes a tree
type TreeStats struct {
	Nodes      int `json:"nodes"`
	Closures   int `json:"closures"`
	MaxDepth   int `json:"max_depth"`
	Procedures int `json:"procedures"`
}

// Stats counts nodes, cycle closures and the deepest level of the tree
func Stats(root *Node) TreeStats {
	var s TreeStats
	Walk(root, func(n *Node) {
		s.Nodes++
		if n.CycleClosure {
			s.Closures++
		}
		if n.depth > s.MaxDepth {
			s.MaxDepth = n.depth
		}
	})
	s.Procedures = len(DistinctNames(root))
	return s
}
