package graph

import "strings"

// EdgeKind represents the type of relationship between two procedures
type EdgeKind string

const (
	EdgeKindExec  EdgeKind = "exec"
	EdgeKindCycle EdgeKind = "cycle"
)

// Edge is a caller -> callee relationship derived from the tree
type Edge struct {
	From string   `json:"from"` // 调用方文件名
	To   string   `json:"to"`   // 被调用方文件名
	Kind EdgeKind `json:"kind"`
}

// Edges flattens the tree into distinct edges in pre-order.
// Repeated call sites of the same pair collapse into one edge. A cycle edge
// points at the ancestor it closes to.
func Edges(root *Node) []Edge {
	var edges []Edge
	seen := make(map[string]bool)

	Walk(root, func(n *Node) {
		for _, child := range n.Children {
			kind := EdgeKindExec
			if child.CycleClosure {
				kind = EdgeKindCycle
			}
			to := child.Target()
			key := strings.ToLower(n.Name()) + "->" + strings.ToLower(to) + ":" + string(kind)
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, Edge{From: n.Name(), To: to, Kind: kind})
		}
	})

	return edges
}
