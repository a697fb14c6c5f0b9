package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vfirsov/agentflow/contracts"
)

func TestBus_PublishSubscribe_FIFO(t *testing.T) {
	b := NewBus()
	ch, cancel, err := b.Subscribe("p1")
	require.NoError(t, err)
	defer cancel()

	b.Publish(contracts.Event{ProjectID: "p1", Type: "task_start"})
	b.Publish(contracts.Event{ProjectID: "p1", Type: "task_complete"})

	first := <-ch
	second := <-ch
	assert.Equal(t, "task_start", first.Type)
	assert.Equal(t, "task_complete", second.Type)
}

func TestBus_SubscriberCap(t *testing.T) {
	b := NewBus()
	var cancels []func()
	for i := 0; i < maxSubscribersPerProject; i++ {
		_, cancel, err := b.Subscribe("p1")
		require.NoError(t, err)
		cancels = append(cancels, cancel)
	}
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	_, _, err := b.Subscribe("p1")
	require.Error(t, err)
}

func TestBus_OverflowDropsOldest(t *testing.T) {
	b := &Bus{subscribers: make(map[contracts.ProjectID][]*subscriber), bufferSize: 2}
	ch, cancel, err := b.Subscribe("p1")
	require.NoError(t, err)
	defer cancel()

	b.Publish(contracts.Event{ProjectID: "p1", Type: "e1"})
	b.Publish(contracts.Event{ProjectID: "p1", Type: "e2"})
	b.Publish(contracts.Event{ProjectID: "p1", Type: "e3"}) // e1 dropped

	first := <-ch
	second := <-ch
	assert.Equal(t, "e2", first.Type)
	assert.Equal(t, "e3", second.Type)
}

func TestBus_IndependentProjectsIsolated(t *testing.T) {
	b := NewBus()
	chA, cancelA, err := b.Subscribe("a")
	require.NoError(t, err)
	defer cancelA()
	chB, cancelB, err := b.Subscribe("b")
	require.NoError(t, err)
	defer cancelB()

	b.Publish(contracts.Event{ProjectID: "a", Type: "only-a"})

	select {
	case e := <-chA:
		assert.Equal(t, "only-a", e.Type)
	default:
		t.Fatal("expected event on channel a")
	}
	select {
	case <-chB:
		t.Fatal("did not expect event on channel b")
	default:
	}
}
