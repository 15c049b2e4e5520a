package neighbors

import (
	"math"
	"sort"
)

// DefaultLeafSize 是叶节点的最大点数。
const DefaultLeafSize = 16

// Neighbor 表示一次近邻查询的单个结果，Index 指向构建时的点下标。
type Neighbor struct {
	Index    int
	Distance float64
}

// Tree 是针对中等维度欧氏空间的球树索引。
// 构建后只读，可被并发查询；语料更新时整体重建并原子替换。
type Tree struct {
	points [][]float64
	root   *node
}

type node struct {
	center  []float64
	radius  float64
	indices []int
	left    *node
	right   *node
}

// Build 在给定点集上构建球树，leafSize <= 0 时使用默认值。
// 构建过程是确定性的：同一点集总是得到同一棵树。
func Build(points [][]float64, leafSize int) *Tree {
	if leafSize <= 0 {
		leafSize = DefaultLeafSize
	}
	indices := make([]int, len(points))
	for i := range indices {
		indices[i] = i
	}
	t := &Tree{points: points}
	if len(points) > 0 {
		t.root = t.build(indices, leafSize)
	}
	return t
}

// Len 返回索引中的点数。
func (t *Tree) Len() int {
	return len(t.points)
}

// Nearest 返回距查询点最近的 k 个点，按距离升序。
// k 超过点数时返回全部点。
func (t *Tree) Nearest(query []float64, k int) []Neighbor {
	if t == nil || t.root == nil || k <= 0 {
		return nil
	}
	if k > len(t.points) {
		k = len(t.points)
	}

	best := &resultSet{limit: k}
	t.search(t.root, query, best)

	sort.Slice(best.items, func(i, j int) bool {
		if best.items[i].Distance == best.items[j].Distance {
			return best.items[i].Index < best.items[j].Index
		}
		return best.items[i].Distance < best.items[j].Distance
	})
	return best.items
}

func (t *Tree) build(indices []int, leafSize int) *node {
	center := t.centroid(indices)
	n := &node{center: center, radius: t.maxDistance(center, indices)}

	if len(indices) <= leafSize {
		n.indices = indices
		return n
	}

	dim := t.spreadDim(indices)
	sort.Slice(indices, func(i, j int) bool {
		a, b := t.points[indices[i]][dim], t.points[indices[j]][dim]
		if a == b {
			return indices[i] < indices[j]
		}
		return a < b
	})
	mid := len(indices) / 2
	n.left = t.build(indices[:mid], leafSize)
	n.right = t.build(indices[mid:], leafSize)
	return n
}

func (t *Tree) search(n *node, query []float64, best *resultSet) {
	// 球面下界剪枝：查询点到球心的距离减半径仍超过当前第 k 近时跳过。
	lower := euclidean(query, n.center) - n.radius
	if best.full() && lower > best.worst() {
		return
	}

	if n.indices != nil {
		for _, idx := range n.indices {
			best.add(Neighbor{Index: idx, Distance: euclidean(query, t.points[idx])})
		}
		return
	}

	first, second := n.left, n.right
	if euclidean(query, n.right.center) < euclidean(query, n.left.center) {
		first, second = n.right, n.left
	}
	t.search(first, query, best)
	t.search(second, query, best)
}

func (t *Tree) centroid(indices []int) []float64 {
	dim := len(t.points[indices[0]])
	center := make([]float64, dim)
	for _, idx := range indices {
		for d, v := range t.points[idx] {
			center[d] += v
		}
	}
	for d := range center {
		center[d] /= float64(len(indices))
	}
	return center
}

func (t *Tree) maxDistance(center []float64, indices []int) float64 {
	var max float64
	for _, idx := range indices {
		if d := euclidean(center, t.points[idx]); d > max {
			max = d
		}
	}
	return max
}

// spreadDim 返回取值范围最大的维度，作为分裂维。
func (t *Tree) spreadDim(indices []int) int {
	dim := len(t.points[indices[0]])
	bestDim := 0
	bestSpread := -1.0
	for d := 0; d < dim; d++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, idx := range indices {
			v := t.points[idx][d]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if spread := hi - lo; spread > bestSpread {
			bestSpread = spread
			bestDim = d
		}
	}
	return bestDim
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// resultSet 维护当前最近的至多 limit 个候选。
type resultSet struct {
	limit int
	items []Neighbor
}

func (r *resultSet) full() bool {
	return len(r.items) >= r.limit
}

func (r *resultSet) worst() float64 {
	worst := -1.0
	for _, item := range r.items {
		if item.Distance > worst {
			worst = item.Distance
		}
	}
	return worst
}

func (r *resultSet) add(candidate Neighbor) {
	if !r.full() {
		r.items = append(r.items, candidate)
		return
	}
	worstIdx := 0
	for i := 1; i < len(r.items); i++ {
		if r.items[i].Distance > r.items[worstIdx].Distance {
			worstIdx = i
		}
	}
	if candidate.Distance < r.items[worstIdx].Distance {
		r.items[worstIdx] = candidate
	}
}
