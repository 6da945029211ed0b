package match

// Union-Find data structure for efficient grouping
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	rank := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: rank}
}

func (uf *unionFind) find(x int) int {
	if uf.parent[x] != x {
		uf.parent[x] = uf.find(uf.parent[x]) // Path compression
	}
	return uf.parent[x]
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	// Union by rank
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}

// buckets groups every element under its root
func (uf *unionFind) buckets() map[int][]int {
	out := make(map[int][]int)
	for i := range uf.parent {
		root := uf.find(i)
		out[root] = append(out[root], i)
	}
	return out
}

// bkTree indexes 64-bit hashes under a metric distance so that all
// entries within a radius can be found without a full scan.
type bkTree struct {
	root     *bkNode
	distance func(a, b uint64) int
}

type bkNode struct {
	hash     uint64
	index    int
	children map[int]*bkNode // distance -> child node
}

func newBKTree(distanceFn func(a, b uint64) int) *bkTree {
	return &bkTree{
		distance: distanceFn,
	}
}

func (t *bkTree) insert(hash uint64, index int) {
	node := &bkNode{
		hash:     hash,
		index:    index,
		children: make(map[int]*bkNode),
	}

	if t.root == nil {
		t.root = node
		return
	}

	current := t.root
	for {
		dist := t.distance(hash, current.hash)
		if child, exists := current.children[dist]; exists {
			current = child
		} else {
			current.children[dist] = node
			return
		}
	}
}

// findWithinDistance returns the indices of all entries at most threshold
// away from hash
func (t *bkTree) findWithinDistance(hash uint64, threshold int) []int {
	if t.root == nil {
		return nil
	}

	var results []int
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dist := t.distance(hash, node.hash)
		if dist <= threshold {
			results = append(results, node.index)
		}

		// Triangle inequality bounds the children worth visiting
		lo, hi := dist-threshold, dist+threshold
		for childDist, child := range node.children {
			if childDist >= lo && childDist <= hi {
				stack = append(stack, child)
			}
		}
	}
	return results
}

func (t *bkTree) size() int {
	if t.root == nil {
		return 0
	}
	count := 0
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		for _, child := range node.children {
			stack = append(stack, child)
		}
	}
	return count
}
