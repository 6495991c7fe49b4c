package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncDispatcherRunsInline(t *testing.T) {
	ran := false
	SyncDispatcher{}.Go(func() { ran = true })
	assert.True(t, ran)
}

func TestSubmitSyncResolvesImmediately(t *testing.T) {
	fut := Submit[int](SyncDispatcher{}, func() Result[int] { return Ok(9) })
	v, ok := fut.Await(context.Background()).Value()
	require.True(t, ok)
	assert.Equal(t, 9, v)
}

func TestAsyncDispatcherRunsInOrder(t *testing.T) {
	d := NewAsyncDispatcher()
	defer d.Close()

	var order []int
	done := make(chan struct{})
	d.Go(func() { order = append(order, 1) })
	d.Go(func() { order = append(order, 2); close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not process tasks")
	}
	assert.Equal(t, []int{1, 2}, order)
}

func TestFutureAwaitRespectsContextCancellation(t *testing.T) {
	d := NewAsyncDispatcher()
	defer d.Close()

	block := make(chan struct{})
	fut := Submit[int](d, func() Result[int] {
		<-block
		return Ok(1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	r := fut.Await(ctx)
	assert.False(t, r.IsOk())
	close(block)
}

func TestCancelTokenCancel(t *testing.T) {
	tok := NewCancelToken(context.Background())
	assert.False(t, tok.Cancelled())
	tok.Cancel()
	assert.True(t, tok.Cancelled())
	assert.NotEmpty(t, tok.ID())
}

func TestDeadlineTimesOut(t *testing.T) {
	dl := NewDeadline(context.Background(), func() context.Context {
		ctx, _ := context.WithTimeout(context.Background(), 10*time.Millisecond)
		return ctx
	})
	<-dl.Context().Done()
	time.Sleep(5 * time.Millisecond)
	assert.True(t, dl.TimedOut())
}
