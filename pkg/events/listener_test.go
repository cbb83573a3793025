package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNotifyListener(t *testing.T) {
	broker := NewBroker(&mockCatchupQuerier{})
	listener := NewNotifyListener("host=localhost dbname=test", broker)

	assert.NotNil(t, listener)
	assert.Equal(t, "host=localhost dbname=test", listener.connString)
	assert.NotNil(t, listener.channels)
	assert.Equal(t, broker, listener.broadcaster)
}

func TestNotifyListener_ChannelTrackingWithoutConnection(t *testing.T) {
	broker := NewBroker(&mockCatchupQuerier{})
	listener := NewNotifyListener("host=localhost dbname=test", broker)

	t.Run("subscribe without connection returns error", func(t *testing.T) {
		err := listener.Subscribe(context.Background(), "test-channel")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not established")
	})

	t.Run("unsubscribe without connection is a no-op", func(t *testing.T) {
		err := listener.Unsubscribe(context.Background(), "test-channel")
		assert.NoError(t, err)
	})

	t.Run("not listening before any subscribe", func(t *testing.T) {
		assert.False(t, listener.isListening("test-channel"))
	})
}
