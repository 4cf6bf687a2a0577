/*
【ファイル概要: fifo.go】
保留中フィードバックの有界FIFO（spec.md §4.9, §5「Shared resources」）。

teacherのリングバッファ的パターン（pkg/buffer内でvp8/opusの失われた
パケット列をNACKキューとして追跡する発想）をgammazero/dequeで一般化し、
「満杯ならdrop-newest」ポリシーの単純なFIFOとして実装する。エンドポイント
1つにつき1インスタンスが所有される（§5「The feedback buffer is owned by
a single endpoint」）。
*/
package feedback

import "github.com/gammazero/deque"

// PendingFIFO is a bounded FIFO of serialized feedback elements awaiting
// piggyback onto the next compressed packet. When full, newly pushed
// elements are dropped (the existing queue contents are preserved).
type PendingFIFO struct {
	q        deque.Deque[[]byte]
	capacity int
	dropped  uint64
}

// NewPendingFIFO creates a FIFO bounded to capacity elements.
func NewPendingFIFO(capacity int) *PendingFIFO {
	return &PendingFIFO{capacity: capacity}
}

// Push enqueues elem. If the FIFO is already at capacity, elem is dropped
// and the drop counter is incremented.
func (p *PendingFIFO) Push(elem []byte) {
	if p.q.Len() >= p.capacity {
		p.dropped++
		return
	}
	p.q.PushBack(elem)
}

// Pop removes and returns the oldest pending element, or nil if empty.
func (p *PendingFIFO) Pop() []byte {
	if p.q.Len() == 0 {
		return nil
	}
	return p.q.PopFront()
}

// Len reports the number of pending elements.
func (p *PendingFIFO) Len() int { return p.q.Len() }

// Dropped reports how many elements have been dropped due to capacity.
func (p *PendingFIFO) Dropped() uint64 { return p.dropped }

// DrainAll pops every pending element in FIFO order.
func (p *PendingFIFO) DrainAll() [][]byte {
	out := make([][]byte, 0, p.q.Len())
	for p.q.Len() > 0 {
		out = append(out, p.q.PopFront())
	}
	return out
}
