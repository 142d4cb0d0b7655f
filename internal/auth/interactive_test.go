package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInteractive(t *testing.T) {
	t.Run("同一时间只运行一个流程", func(t *testing.T) {
		i := NewInteractive(context.Background(), time.Minute, nil)
		release := make(chan struct{})
		started := make(chan struct{})

		require.True(t, i.Start("login", func(context.Context) error {
			close(started)
			<-release
			return nil
		}))
		<-started

		assert.True(t, i.Running())
		assert.False(t, i.Start("register", func(context.Context) error { return nil }))

		close(release)
		assert.Eventually(t, func() bool { return !i.Running() }, time.Second, 5*time.Millisecond)
		assert.True(t, i.Start("login", func(context.Context) error { return errors.New("denied") }))
	})

	t.Run("超时后取消流程", func(t *testing.T) {
		i := NewInteractive(context.Background(), 20*time.Millisecond, nil)
		done := make(chan error, 1)

		require.True(t, i.Start("login", func(ctx context.Context) error {
			<-ctx.Done()
			done <- ctx.Err()
			return ctx.Err()
		}))

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		case <-time.After(time.Second):
			t.Fatal("flow was not cancelled")
		}
	})

	t.Run("基础上下文取消时流程结束", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		i := NewInteractive(ctx, time.Minute, nil)

		require.True(t, i.Start("login", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}))
		cancel()

		assert.Eventually(t, func() bool { return !i.Running() }, time.Second, 5*time.Millisecond)
	})
}
