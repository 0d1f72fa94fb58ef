package queue

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reqItem struct {
	ID string
}

func TestBuffer_Order(t *testing.T) {
	tests := []struct {
		policy Policy
		want   []string
	}{
		{FIFO, []string{"a", "b", "c"}},
		{LIFO, []string{"c", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			assert := assert.New(t)
			b := New[*reqItem](tt.policy)

			assert.True(b.IsEmpty())
			_, ok := b.Pop()
			assert.False(ok)

			for _, id := range []string{"a", "b", "c"} {
				b.Push(&reqItem{id})
			}
			assert.Equal(3, b.Len())

			got := make([]string, 0, 3)
			for {
				item, ok := b.Pop()
				if !ok {
					break
				}
				got = append(got, item.ID)
			}
			assert.Equal(tt.want, got)
			assert.True(b.IsEmpty())
		})
	}
}

func TestBuffer_Drain(t *testing.T) {
	for _, p := range []Policy{FIFO, LIFO} {
		t.Run(p.String(), func(t *testing.T) {
			b := New[int](p)
			for i := range 5 {
				b.Push(i)
			}

			items := b.Drain()
			require.Len(t, items, 5)
			if p == FIFO {
				assert.Equal(t, []int{0, 1, 2, 3, 4}, items)
			} else {
				assert.Equal(t, []int{4, 3, 2, 1, 0}, items)
			}
			assert.True(t, b.IsEmpty())
			assert.Empty(t, b.Drain())
		})
	}
}

func TestBuffer_Concurrency(t *testing.T) {
	for _, p := range []Policy{FIFO, LIFO} {
		t.Run(p.String(), func(t *testing.T) {
			b := New[*reqItem](p)

			var wg sync.WaitGroup
			for i := range 1000 {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					b.Push(&reqItem{strconv.Itoa(i)})
				}(i)
			}
			wg.Wait()
			assert.Equal(t, 1000, b.Len())

			var mu sync.Mutex
			seen := make(map[string]bool, 1000)
			wg.Add(1000)
			for range 1000 {
				go func() {
					defer wg.Done()
					item, ok := b.Pop()
					if !ok {
						return
					}
					mu.Lock()
					seen[item.ID] = true
					mu.Unlock()
				}()
			}
			wg.Wait()

			assert.True(t, b.IsEmpty())
			assert.Len(t, seen, 1000, "every item is taken exactly once")
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("stack")
	require.NoError(t, err)
	assert.Equal(t, LIFO, p)

	p, err = ParsePolicy("fifo")
	require.NoError(t, err)
	assert.Equal(t, FIFO, p)

	_, err = ParsePolicy("random")
	require.Error(t, err)
	assert.Equal(t, "Policy(9)", Policy(9).String())
}

func BenchmarkLockFreeQueue_100(b *testing.B) {
	benchBuffer(b, NewLockFreeQueue[int](), 100)
}

func BenchmarkStack_100(b *testing.B) {
	benchBuffer(b, NewStack[int](100), 100)
}

func benchBuffer(b *testing.B, q Buffer[int], iterCount int) {
	ctx := context.Background()

	b.ResetTimer()
	for range b.N {
		stopCh := make(chan struct{})
		go func(ctx context.Context) {
			n := 0
			for {
				select {
				case <-ctx.Done():
					return
				default:
					if _, ok := q.Pop(); ok {
						n++
					}
					if n == iterCount {
						close(stopCh)
						return
					}
				}
			}
		}(ctx)

		for i := range iterCount {
			q.Push(i + 1)
		}
		<-stopCh
	}
	b.StopTimer()
}
