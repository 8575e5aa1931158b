// Package memory is an in-process queue with the same partitioning,
// ordering and redelivery semantics as the kafka adapter. It backs tests
// and single-process development; nothing about it is durable
package memory

import (
	"context"
	"hash/fnv"
	"sync"

	"gitpulse/internal/adapters/queue"
)

var (
	_ queue.Publisher = (*Queue)(nil)
	_ queue.Consumer  = (*Queue)(nil)
)

// Queue implements both queue ports over N append-only partition logs.
// Messages sharing a key land in one partition and keep their order
type Queue struct {
	mu         sync.Mutex
	partitions [][]queue.Message
	cursors    []int64 // next offset to hand out
	committed  []int64 // high water committed offset
	next       int     // fetch fairness rotor
	rr         int     // round robin rotor for keyless messages
	wake       chan struct{}
	closed     bool
}

// New builds a Queue with n partitions
func New(n int) *Queue {
	if n <= 0 {
		n = 4
	}
	return &Queue{
		partitions: make([][]queue.Message, n),
		cursors:    make([]int64, n),
		committed:  make([]int64, n),
		wake:       make(chan struct{}),
	}
}

func (q *Queue) partitionFor(key []byte) int {
	if len(key) == 0 {
		p := q.rr % len(q.partitions)
		q.rr++
		return p
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(len(q.partitions)))
}

// Publish appends msgs to their partitions and wakes blocked fetchers
func (q *Queue) Publish(_ context.Context, msgs ...queue.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	for _, m := range msgs {
		p := q.partitionFor(m.Key)
		m.Partition = p
		m.Offset = int64(len(q.partitions[p]))
		q.partitions[p] = append(q.partitions[p], m)
	}
	close(q.wake)
	q.wake = make(chan struct{})
	return nil
}

// Fetch returns the next uncursored message, blocking until one arrives,
// the queue closes, or ctx ends
func (q *Queue) Fetch(ctx context.Context) (queue.Message, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return queue.Message{}, queue.ErrClosed
		}
		n := len(q.partitions)
		for i := range n {
			p := (q.next + i) % n
			if q.cursors[p] < int64(len(q.partitions[p])) {
				m := q.partitions[p][q.cursors[p]]
				q.cursors[p]++
				q.next = (p + 1) % n
				q.mu.Unlock()
				return m, nil
			}
		}
		w := q.wake
		q.mu.Unlock()

		select {
		case <-w:
		case <-ctx.Done():
			return queue.Message{}, ctx.Err()
		}
	}
}

// Commit advances the committed watermark for each message's partition
func (q *Queue) Commit(_ context.Context, msgs ...queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	for _, m := range msgs {
		if m.Partition < 0 || m.Partition >= len(q.partitions) {
			continue
		}
		if next := m.Offset + 1; next > q.committed[m.Partition] {
			q.committed[m.Partition] = next
		}
	}
	return nil
}

// Rewind rolls every cursor back to its committed watermark, the same
// redelivery a consumer restart produces: fetched but uncommitted
// messages come around again
func (q *Queue) Rewind() {
	q.mu.Lock()
	defer q.mu.Unlock()
	copy(q.cursors, q.committed)
	q.next = 0
}

// Depth reports messages not yet handed out, across all partitions
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	d := 0
	for p := range q.partitions {
		d += len(q.partitions[p]) - int(q.cursors[p])
	}
	return d
}

// Close wakes all blocked fetchers and fails further calls
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.wake)
	return nil
}
