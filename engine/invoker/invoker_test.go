package invoker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_ScriptedSequence(t *testing.T) {
	f := NewFake()
	f.Script("gmail", "send_email", nil, &Error{Kind: Retriable, Message: "rate limited", Status: 429})
	f.Script("gmail", "send_email", nil, &Error{Kind: Retriable, Message: "rate limited", Status: 429})
	f.Script("gmail", "send_email", &Result{Output: map[string]any{"ok": true}}, nil)

	ctx := context.Background()
	req := Request{Tool: "gmail", Action: "send_email"}

	t.Run("Should return the scripted errors then the success in order", func(t *testing.T) {
		_, err1 := f.Invoke(ctx, req)
		require.NotNil(t, err1)
		assert.True(t, err1.Retriable())

		_, err2 := f.Invoke(ctx, req)
		require.NotNil(t, err2)

		res, err3 := f.Invoke(ctx, req)
		require.Nil(t, err3)
		require.NotNil(t, res)
		assert.Equal(t, true, res.Output["ok"])
	})

	t.Run("Should record every call", func(t *testing.T) {
		assert.Len(t, f.Calls(), 3)
	})
}

func TestError_Retriable(t *testing.T) {
	assert.True(t, (&Error{Kind: Retriable}).Retriable())
	assert.False(t, (&Error{Kind: Fatal}).Retriable())
}

func TestWithTimeout(t *testing.T) {
	t.Run("Should apply a deadline when TimeoutMS is set", func(t *testing.T) {
		ctx, cancel := WithTimeout(context.Background(), Request{TimeoutMS: 50})
		defer cancel()
		_, ok := ctx.Deadline()
		assert.True(t, ok)
	})

	t.Run("Should not set a deadline when TimeoutMS is zero", func(t *testing.T) {
		ctx, cancel := WithTimeout(context.Background(), Request{})
		defer cancel()
		_, ok := ctx.Deadline()
		assert.False(t, ok)
	})
}
