package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronNextQuarterHour(t *testing.T) {
	oslo, err := time.LoadLocation("Europe/Oslo")
	require.NoError(t, err)
	cr := NewCron(oslo, nil)

	from := time.Date(2026, 3, 2, 10, 7, 30, 0, oslo)
	next, err := cr.Next("*/15 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 15, 0, 0, oslo), next)

	_, err = cr.Next("not a schedule", from)
	assert.Error(t, err)
}

func TestCronRecoversFromPanic(t *testing.T) {
	cr := NewCron(time.UTC, nil)
	var runs int32
	_, err := cr.AddWithCtx("@every 1s", func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
		panic("boom")
	})
	require.NoError(t, err)
	cr.Start()
	time.Sleep(2500 * time.Millisecond)
	cr.Stop()
	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(2))
}

func TestSchedulerEvery(t *testing.T) {
	s := New()
	var n int32
	s.Every(10*time.Millisecond, FuncJob(func(ctx context.Context) { atomic.AddInt32(&n, 1) }))
	time.Sleep(60 * time.Millisecond)
	s.Stop()
	assert.Greater(t, atomic.LoadInt32(&n), int32(1))
}
