package snsw

import "container/heap"

// scored pairs a node with its cosine similarity against the query
// vector for this search (higher score = closer).
type scored struct {
	id    string
	node  *Node
	score float64
}

// candidateQueue is a min-heap on score: Pop returns the worst-scoring
// (least promising) candidate first. searchLayer uses it as the bounded
// result set, where popping the worst makes room for a better candidate
// once the set exceeds ef; the frontier to explore is the separate
// max-heap type below.
type candidateQueue []scored

func (q candidateQueue) Len() int            { return len(q) }
func (q candidateQueue) Less(i, j int) bool  { return q[i].score < q[j].score }
func (q candidateQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *candidateQueue) Push(x interface{}) { *q = append(*q, x.(scored)) }
func (q *candidateQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// frontier is a max-heap on score, used to repeatedly extract the
// best unexplored candidate during a beam search.
type frontier []scored

func (q frontier) Len() int            { return len(q) }
func (q frontier) Less(i, j int) bool  { return q[i].score > q[j].score }
func (q frontier) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *frontier) Push(x interface{}) { *q = append(*q, x.(scored)) }
func (q *frontier) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

var _ heap.Interface = (*candidateQueue)(nil)
var _ heap.Interface = (*frontier)(nil)

func pushFrontier(f *frontier, item scored)        { heap.Push(f, item) }
func popFrontier(f *frontier) scored               { return heap.Pop(f).(scored) }
func pushCandidate(q *candidateQueue, item scored) { heap.Push(q, item) }
func popCandidate(q *candidateQueue) scored        { return heap.Pop(q).(scored) }
