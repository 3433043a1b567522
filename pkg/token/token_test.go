package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokensAreServedInFIFOOrder(t *testing.T) {
	s := NewSource()
	var order []int

	const n = 5
	toks := make([]Token, n)
	for i := 0; i < n; i++ {
		toks[i] = s.NewWriteToken()
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < n; i++ {
			toks[i].Wait()
			order = append(order, i)
			time.Sleep(time.Millisecond)
			toks[i].Release()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tokens did not drain in time")
	}

	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFirstTokenIsImmediatelyReady(t *testing.T) {
	s := NewSource()
	tok := s.NewReadToken()

	select {
	case <-tok.ready:
	default:
		t.Fatal("first token should be ready without any prior release")
	}
	tok.Release()
}
