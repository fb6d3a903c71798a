package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"
)

func TestSharedWriteOutlivesCancelledStarter(t *testing.T) {
	var g singleflight.Group
	started := make(chan struct{})
	release := make(chan struct{})
	writeErr := make(chan error, 2)
	write := func(ctx context.Context) (bool, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		writeErr <- ctx.Err()
		return false, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := sharedWrite(ctx, &g, "obj", write)
		first <- err
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		_, err := sharedWrite(context.Background(), &g, "obj", write)
		second <- err
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled, "the cancelled caller stops waiting")

	close(release)
	require.NoError(t, <-second)
	assert.NoError(t, <-writeErr, "the write does not see the starter's cancellation")
}

func TestSharedWriteReturnsWriteError(t *testing.T) {
	var g singleflight.Group
	boom := errors.New("disk full")

	_, err := sharedWrite(context.Background(), &g, "obj", func(context.Context) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)

	existed, err := sharedWrite(context.Background(), &g, "obj", func(context.Context) (bool, error) { return true, nil })
	require.NoError(t, err)
	assert.True(t, existed)
}
