package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkQueue(t *testing.T) {
	tests := []struct {
		name        string
		cap         int
		pushes      [][]byte
		wantDropped int
		wantDepth   int
		wantBytes   int
		wantFirst   []byte
	}{
		{
			name:      "Under capacity keeps everything",
			cap:       10,
			pushes:    [][]byte{{1, 2}, {3, 4}, {5}},
			wantDepth: 3,
			wantBytes: 5,
			wantFirst: []byte{1, 2},
		},
		{
			name:        "Overflow drops oldest whole chunks",
			cap:         4,
			pushes:      [][]byte{{1, 2}, {3, 4}, {5, 6}},
			wantDropped: 2,
			wantDepth:   2,
			wantBytes:   4,
			wantFirst:   []byte{3, 4},
		},
		{
			name:        "Oversized chunk evicts the queue",
			cap:         4,
			pushes:      [][]byte{{1, 2}, {3, 4, 5, 6, 7}},
			wantDropped: 2,
			wantDepth:   1,
			wantBytes:   5,
			wantFirst:   []byte{3, 4, 5, 6, 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewChunkQueue(tt.cap)
			dropped := 0
			for _, chunk := range tt.pushes {
				dropped += q.Push(chunk)
			}
			assert.Equal(t, tt.wantDropped, dropped)
			assert.Equal(t, tt.wantDepth, q.Depth())
			assert.Equal(t, tt.wantBytes, q.Bytes())
			assert.Equal(t, tt.wantFirst, q.Pop())
		})
	}
}

func TestChunkQueueOrder(t *testing.T) {
	q := NewChunkQueue(1 << 20)
	for i := 0; i < 16; i++ {
		q.Push([]byte{byte(i)})
	}
	snapshot := q.Snapshot()
	assert.Len(t, snapshot, 16)
	for i, chunk := range snapshot {
		assert.Equal(t, []byte{byte(i)}, chunk)
	}
	for i := 0; i < 16; i++ {
		assert.Equal(t, []byte{byte(i)}, q.Pop())
	}
	assert.Nil(t, q.Pop())
	assert.Equal(t, 0, q.Depth())
}
