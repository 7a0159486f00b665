package graph

// WouldCreateCycle reports whether an edge source→target would close a
// cycle, i.e. whether source is reachable from target. The search is an
// iterative DFS bounded by the number of nodes.
func WouldCreateCycle(g *Graph, source, target NodeIndex) bool {
	if source == target {
		return true
	}
	visited := make([]bool, g.capacity())
	stack := []NodeIndex{target}
	budget := g.capacity()
	for len(stack) > 0 && budget > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == source {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		budget--
		for _, ei := range g.out[n] {
			next := g.edges[ei].to
			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return false
}

// HasCycle runs Kahn's algorithm over the whole graph. Used after a rebuild
// from storage, where edges are inserted without the per-edge guard.
func HasCycle(g *Graph) bool {
	indegree := make([]int, g.capacity())
	for i := range g.nodes {
		if g.removed[i] {
			continue
		}
		indegree[i] = len(g.in[i])
	}
	queue := make([]NodeIndex, 0, g.NodeCount())
	for i := range g.nodes {
		if !g.removed[i] && indegree[i] == 0 {
			queue = append(queue, NodeIndex(i))
		}
	}
	seen := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		seen++
		for _, ei := range g.out[n] {
			next := g.edges[ei].to
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return seen != g.NodeCount()
}
