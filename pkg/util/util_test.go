package util

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestSlotIsStable(t *testing.T) {
	for _, key := range []string{"a", "0b7c1e9a-5d3f-4b61-9f1e-3c2a7d9e8f10", ""} {
		first := Slot(key, 8)
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, 8)
		assert.Equal(t, first, Slot(key, 8))
	}
	assert.Equal(t, 0, Slot("anything", 1))
	assert.Equal(t, Slot("msg:{42}:translation", 16), Slot("msg:{42}:vision", 16))
}

func TestSignalsEmitInOrder(t *testing.T) {
	s := NewSignals()
	var got []int
	s.Connect("x", func(sender any, params ...any) { got = append(got, 1) })
	s.Connect("x", func(sender any, params ...any) { got = append(got, sender.(int)) })
	s.Emit("x", 2)
	s.Emit("y", 3)
	assert.Equal(t, []int{1, 2}, got)

	s.Disconnect("x")
	s.Emit("x", 4)
	assert.Len(t, got, 2)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("UTIL_TEST_INT", "12")
	t.Setenv("UTIL_TEST_BOOL", "true")
	t.Setenv("UTIL_TEST_DUR", "20s")
	t.Setenv("UTIL_TEST_SECS", "5")

	assert.Equal(t, int64(12), GetIntEnv("UTIL_TEST_INT"))
	assert.Equal(t, 7, GetIntEnvOr("UTIL_TEST_MISSING", 7))
	assert.True(t, GetBoolEnv("UTIL_TEST_BOOL"))
	assert.Equal(t, 20*time.Second, GetDurationEnvOr("UTIL_TEST_DUR", time.Second))
	assert.Equal(t, 5*time.Second, GetDurationEnvOr("UTIL_TEST_SECS", time.Second))
	assert.Equal(t, "fallback", GetEnvOr("UTIL_TEST_MISSING", "fallback"))
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger(&buf, gormlogger.Warn)
	sql := func() (string, int64) { return "SELECT * FROM users WHERE id = 1", 0 }

	l.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	l.Trace(context.Background(), time.Now(), sql, errors.New("disk I/O error"))
	assert.Contains(t, buf.String(), "disk I/O error")
}
