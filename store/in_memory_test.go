package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	tr := sampleTranscript("a", epoch)
	require.NoError(t, s.Save(ctx, tr))

	tr.Messages[0].Content = "mutated"
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Messages[0].Content)

	got.Messages[0].Content = "mutated again"
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Messages[0].Content)
}

func TestInMemoryStore_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(func(o *InMemoryOptions) { o.MaxEntries = 2 })
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(ctx, sampleTranscript(fmt.Sprintf("r%d", i), epoch.Add(time.Duration(i)*time.Second))))
	}

	assert.Equal(t, 2, s.Len())
	_, err := s.Get(ctx, "r0")
	assert.Error(t, err)
	_, err = s.Get(ctx, "r2")
	assert.NoError(t, err)
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("r%d", i)
			assert.NoError(t, s.Save(ctx, sampleTranscript(id, epoch)))
			_, err := s.Get(ctx, id)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}
