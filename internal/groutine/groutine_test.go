package groutine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGo_NamesContext(t *testing.T) {
	got := make(chan string, 1)

	//nolint:staticcheck // nil parent context is part of the contract
	Go(nil, "worker-42", func(ctx context.Context) {
		got <- GetName(ctx)
	})

	assert.Equal(t, "worker-42", <-got)
	assert.Equal(t, "", GetName(context.Background()))
}

func TestGroup_WaitJoinsAll(t *testing.T) {
	var g Group
	var n atomic.Int32
	release := make(chan struct{})

	for i := 0; i < 5; i++ {
		g.Go(context.Background(), "member", func(ctx context.Context) {
			<-release
			n.Add(1)
		})
	}
	close(release)
	g.Wait()

	assert.Equal(t, int32(5), n.Load(), "Wait MUST return only after every goroutine finished")
}
