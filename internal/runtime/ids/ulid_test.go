package ids

import (
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageIDSequentialOrdering(t *testing.T) {
	const total = 100
	generated := make([]string, total)
	for i := range generated {
		generated[i] = NewMessageID()
	}

	for i, id := range generated {
		require.Len(t, id, 26)
		_, err := ulid.Parse(id)
		require.NoError(t, err)
		if i > 0 {
			assert.Less(t, generated[i-1], id)
		}
	}
}

func TestNewMessageIDConcurrentUniqueness(t *testing.T) {
	const workers, perWorker = 8, 50
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := NewMessageID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestMessageTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, ok := MessageTime(NewMessageID())
	require.True(t, ok)
	assert.True(t, ts.After(before))

	_, ok = MessageTime("not-a-ulid")
	assert.False(t, ok)
}
