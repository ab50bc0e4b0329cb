package api

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestSubscriptionCancel(t *testing.T) {
	stops := 0
	s := NewSubscription(func() { stops++ })
	assert.True(t, s.Active())

	delivered := 0
	assert.True(t, s.Deliver(func() { delivered++ }))

	s.Cancel()
	s.Cancel()

	assert.False(t, s.Active())
	assert.False(t, s.Deliver(func() { delivered++ }))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, stops)
	assert.NoError(t, s.Err())

	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed after cancel")
	}
}

func TestSubscriptionCancelFromEmission(t *testing.T) {
	s := NewSubscription(nil)
	s.Deliver(func() { s.Cancel() })
	assert.False(t, s.Active())
}

func TestSubscriptionFail(t *testing.T) {
	boom := errors.New("listener broke")
	s := NewSubscription(nil)

	s.Fail(boom)
	assert.False(t, s.Active())
	assert.Equal(t, boom, s.Err())

	s.Fail(errors.New("later"))
	assert.Equal(t, boom, s.Err())
}

func TestSubscriptionFailAfterCancel(t *testing.T) {
	s := NewSubscription(nil)
	s.Cancel()
	s.Fail(errors.New("late failure"))
	assert.NoError(t, s.Err())
}
