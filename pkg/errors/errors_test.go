package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsKindAndCause(t *testing.T) {
	err := Wrap(context.DeadlineExceeded, KindTransient, "translate")
	assert.Equal(t, KindTransient, KindOf(err))
	assert.True(t, Is(err, context.DeadlineExceeded))
	assert.Equal(t, context.DeadlineExceeded, Cause(err))
	assert.Equal(t, "translate: context deadline exceeded", err.Error())
	assert.Nil(t, Wrap(nil, KindTransient, "nothing"))
}

func TestKindOfThroughFmtWrapping(t *testing.T) {
	inner := New(KindNotFound, "message 42")
	outer := fmt.Errorf("pipeline: %w", inner)
	assert.True(t, IsKind(outer, KindNotFound))
	assert.False(t, IsKind(stderrors.New("plain"), KindNotFound))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestWithContextCopies(t *testing.T) {
	base := New(KindData, "decrypt")
	withID := base.WithContext("message_id", "abc")
	assert.Empty(t, base.Context)
	assert.Equal(t, []KeyValue{{Key: "message_id", Value: "abc"}}, withID.Context)
	assert.Equal(t, "not_found", KindNotFound.String())
}
