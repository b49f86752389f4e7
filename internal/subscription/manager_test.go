package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goblin/internal/gwerr"
	"goblin/pkg/logging"
)

func TestSubscribeFirstSubscriberIsNew(t *testing.T) {
	m := New(logging.Nop(), 0)

	sub, isNew, err := m.Subscribe("client-1", "alpha_file:///a", "alpha")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "client-1", sub.ClientID)
}

func TestSubscribeSecondClientIsNotNewForBackendButRecorded(t *testing.T) {
	m := New(logging.Nop(), 0)
	_, _, err := m.Subscribe("client-1", "alpha_file:///a", "alpha")
	require.NoError(t, err)

	_, isNew, err := m.Subscribe("client-2", "alpha_file:///a", "alpha")
	require.NoError(t, err)
	assert.False(t, isNew, "second subscriber to the same uri should not trigger a new backend subscribe")

	assert.ElementsMatch(t, []string{"client-1", "client-2"}, m.GetSubscribers("alpha_file:///a"))
}

func TestSubscribeIsIdempotentForSameClient(t *testing.T) {
	m := New(logging.Nop(), 0)
	_, isNew1, err := m.Subscribe("client-1", "alpha_file:///a", "alpha")
	require.NoError(t, err)
	require.True(t, isNew1)

	_, isNew2, err := m.Subscribe("client-1", "alpha_file:///a", "alpha")
	require.NoError(t, err)
	assert.False(t, isNew2)
	assert.Len(t, m.GetSubscribers("alpha_file:///a"), 1)
}

func TestSubscribeEnforcesPerClientLimit(t *testing.T) {
	m := New(logging.Nop(), 1)
	_, _, err := m.Subscribe("client-1", "alpha_file:///a", "alpha")
	require.NoError(t, err)

	_, _, err = m.Subscribe("client-1", "alpha_file:///b", "alpha")
	require.Error(t, err)

	gwErr, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.KindSubscriptionLimit, gwErr.Kind)
}

func TestUnsubscribeReportsLastSubscriber(t *testing.T) {
	m := New(logging.Nop(), 0)
	_, _, _ = m.Subscribe("client-1", "alpha_file:///a", "alpha")
	_, _, _ = m.Subscribe("client-2", "alpha_file:///a", "alpha")

	existed, last := m.Unsubscribe("client-1", "alpha_file:///a")
	assert.True(t, existed)
	assert.False(t, last, "another client is still subscribed")

	existed, last = m.Unsubscribe("client-2", "alpha_file:///a")
	assert.True(t, existed)
	assert.True(t, last)
}

func TestUnsubscribeUnknownReturnsNotExisted(t *testing.T) {
	m := New(logging.Nop(), 0)
	existed, last := m.Unsubscribe("client-1", "alpha_file:///a")
	assert.False(t, existed)
	assert.False(t, last)
}

func TestCleanupClientRemovesEveryOwnedSubscription(t *testing.T) {
	m := New(logging.Nop(), 0)
	_, _, _ = m.Subscribe("client-1", "alpha_file:///a", "alpha")
	_, _, _ = m.Subscribe("client-1", "alpha_file:///b", "alpha")
	_, _, _ = m.Subscribe("client-2", "alpha_file:///a", "alpha")

	removed := m.CleanupClient("client-1")

	assert.Len(t, removed, 2)
	assert.Empty(t, m.GetClientSubscriptions("client-1"))

	var sawA bool
	for _, r := range removed {
		if r.NamespacedURI == "alpha_file:///a" {
			sawA = true
			assert.False(t, r.LastSubscriber, "client-2 still subscribed to uri a")
		}
	}
	assert.True(t, sawA)
	assert.True(t, m.HasSubscribers("alpha_file:///a"))
}

func TestHasSubscribers(t *testing.T) {
	m := New(logging.Nop(), 0)
	assert.False(t, m.HasSubscribers("alpha_file:///a"))

	_, _, _ = m.Subscribe("client-1", "alpha_file:///a", "alpha")
	assert.True(t, m.HasSubscribers("alpha_file:///a"))
}
