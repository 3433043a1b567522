package sindex

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTicketQueueServesInOrder(t *testing.T) {
	q := NewTicketQueue()
	const n = 8
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := n - 1; i >= 0; i-- {
		i := i
		ticket := q.Take()
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.WaitForTurn(ticket)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			q.Advance(ticket)
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ticket queue did not drain")
	}

	expected := make([]int, n)
	for i := range expected {
		expected[i] = n - 1 - i
	}
	require.Equal(t, expected, order)
}
