package notify

import (
	"context"
	"testing"

	desktop "github.com/TheCreeper/go-notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"tempmail/client/internal/pool"
)

func TestFanout(t *testing.T) {
	var a, b []Notification
	fanout := NewFanout(nil,
		SinkFunc(func(n Notification) { a = append(a, n) }),
		SinkFunc(func(n Notification) { b = append(b, n) }),
	)
	fanout.Add(nil)

	fanout.Notify(Info("%d new message(s)", 2))
	fanout.Notify(Notification{Kind: KindWarning, Message: "expired"})

	require.Len(t, a, 2)
	assert.Equal(t, a, b)
	assert.Equal(t, "2 new message(s)", a[0].Message)
	assert.Equal(t, KindInfo, a[0].Kind)
	assert.False(t, a[1].Time.IsZero())
}

func TestHistory(t *testing.T) {
	h := NewHistory(2)

	h.Notify(Success("one"))
	h.Notify(Error("two"))
	h.Notify(Warning("three"))

	recent := h.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[0].Message)
	assert.Equal(t, "three", recent[1].Message)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	sink.Notify(Error("mailbox not found or expired"))
	sink.Notify(Info("hello"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, "mailbox not found or expired", entries[0].Message)
	assert.Equal(t, zap.InfoLevel, entries[1].Level)
}

func TestDesktopSink(t *testing.T) {
	var shown []desktop.Notification
	sink := NewDesktopSink(nil)
	sink.show = func(n desktop.Notification) error {
		shown = append(shown, n)
		return nil
	}

	sink.Notify(Info("1 new message(s)"))
	sink.Notify(Error("boom"))

	require.Len(t, shown, 2)
	assert.Equal(t, "tempmail", shown[0].AppName)
	assert.Equal(t, "mail-unread", shown[0].AppIcon)
	assert.Equal(t, "1 new message(s)", shown[0].Body)
	assert.Equal(t, int32(desktop.ExpiresNever), shown[1].Timeout)
}

func TestAsyncSink(t *testing.T) {
	p := pool.NewWorkerPool(1, 4, nil)
	p.Start(context.Background())

	got := make(chan Notification, 1)
	sink := NewAsyncSink(SinkFunc(func(n Notification) { got <- n }), p, nil)

	sink.Notify(Warning("mailbox %s has expired", "abc@example.com"))
	p.Stop()

	n := <-got
	assert.Equal(t, KindWarning, n.Kind)
	assert.Equal(t, "mailbox abc@example.com has expired", n.Message)
}

func TestAsyncSink_QueueFull(t *testing.T) {
	p := pool.NewWorkerPool(1, 0, nil)
	sink := NewAsyncSink(SinkFunc(func(Notification) { t.Fatal("must not be called") }), p, nil)

	assert.NotPanics(t, func() { sink.Notify(Info("dropped")) })
}
