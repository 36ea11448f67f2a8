// Package routing validates proposed connections in the track/plugin
// graph before they're made, rejecting any edge that would close a
// cycle.
package routing

// Node identifies a connectable point in the graph: a track's audio
// input or output, or a plugin's audio input or output. Callers supply
// their own comparable Node type.
type Node interface{}

// Neighbors returns every node directly reachable from n by an existing
// edge.
type Neighbors func(n Node) []Node

// WouldCreateCycle reports whether adding an edge from→to would create a
// cycle in the graph described by neighbors. An edge from a node to
// itself is always a cycle. Otherwise the new edge closes a cycle
// exactly when to can already reach from by following existing edges.
func WouldCreateCycle(from, to Node, neighbors Neighbors) bool {
	if from == to {
		return true
	}
	return hasPath(to, from, neighbors, make(map[Node]bool))
}

func hasPath(from, target Node, neighbors Neighbors, visited map[Node]bool) bool {
	if from == target {
		return true
	}
	if visited[from] {
		return false
	}
	visited[from] = true
	for _, n := range neighbors(from) {
		if hasPath(n, target, neighbors, visited) {
			return true
		}
	}
	return false
}
