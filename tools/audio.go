package tools

import "sync"

// ChunkQueue is a bounded FIFO of audio chunks. When the byte cap would be
// exceeded, the oldest chunks are dropped whole so that relative order of
// the survivors is preserved.
type ChunkQueue struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
	cap    int
}

func NewChunkQueue(byteCap int) *ChunkQueue {
	return &ChunkQueue{cap: byteCap}
}

// Push appends chunk and returns the number of bytes dropped from the head
// to stay under the cap. A chunk larger than the whole cap replaces the
// queue content entirely.
func (q *ChunkQueue) Push(chunk []byte) (dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.chunks) > 0 && q.size+len(chunk) > q.cap {
		dropped += len(q.chunks[0])
		q.size -= len(q.chunks[0])
		q.chunks = q.chunks[1:]
	}
	q.chunks = append(q.chunks, chunk)
	q.size += len(chunk)
	return dropped
}

// Pop removes and returns the oldest chunk, or nil when empty.
func (q *ChunkQueue) Pop() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.chunks) == 0 {
		return nil
	}
	chunk := q.chunks[0]
	q.chunks = q.chunks[1:]
	q.size -= len(chunk)
	return chunk
}

// Depth reports the number of queued chunks.
func (q *ChunkQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

// Bytes reports the total queued payload size.
func (q *ChunkQueue) Bytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Snapshot returns the queued chunks oldest-first without consuming them.
func (q *ChunkQueue) Snapshot() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, len(q.chunks))
	copy(out, q.chunks)
	return out
}
