package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveOne(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.C():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	sub := broker.Subscribe(TopicDeploymentStatus)
	broker.Publish(TopicDeploymentStatus, "hello")

	ev := receiveOne(t, sub)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, TopicDeploymentStatus, ev.Topic)
	assert.Equal(t, "hello", ev.Payload)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestTopicFiltering(t *testing.T) {
	tests := []struct {
		name      string
		subscribe []Topic
		publish   Topic
		want      bool
	}{
		{
			name:      "matching topic delivered",
			subscribe: []Topic{TopicStats},
			publish:   TopicStats,
			want:      true,
		},
		{
			name:      "non-matching topic filtered",
			subscribe: []Topic{TopicStats},
			publish:   TopicDeploymentStatus,
			want:      false,
		},
		{
			name:      "one of several topics",
			subscribe: []Topic{TopicStats, TopicSystemHealth},
			publish:   TopicSystemHealth,
			want:      true,
		},
		{
			name:      "no topics receives everything",
			subscribe: nil,
			publish:   TopicDeploymentStatus,
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := NewBroker()
			defer broker.Close()

			sub := broker.Subscribe(tt.subscribe...)
			broker.Publish(tt.publish, "payload")

			select {
			case ev := <-sub.C():
				require.True(t, tt.want, "unexpected event %v", ev.Topic)
				assert.Equal(t, tt.publish, ev.Topic)
			default:
				require.False(t, tt.want, "expected an event, queue empty")
			}
		})
	}
}

func TestSaturatedSubscriberDropsOldest(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	sub := broker.Subscribe(TopicStats)

	// Overfill the queue by three without consuming.
	total := subscriptionBuffer + 3
	for i := 0; i < total; i++ {
		broker.Publish(TopicStats, i)
	}

	assert.Equal(t, uint64(3), sub.Lag())

	// The three OLDEST events were evicted; delivery order is preserved
	// for the rest.
	for want := 3; want < total; want++ {
		ev := receiveOne(t, sub)
		assert.Equal(t, want, ev.Payload)
	}

	select {
	case ev := <-sub.C():
		t.Fatalf("queue should be empty, got %v", ev.Payload)
	default:
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	slow := broker.Subscribe(TopicStats)
	fast := broker.Subscribe(TopicStats)

	for i := 0; i < subscriptionBuffer*2; i++ {
		broker.Publish(TopicStats, i)
		// Keep the fast subscriber drained.
		receiveOne(t, fast)
	}

	assert.Equal(t, uint64(subscriptionBuffer), slow.Lag())
	assert.Equal(t, uint64(0), fast.Lag())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	sub := broker.Subscribe(TopicStats)
	require.Equal(t, 1, broker.SubscriberCount())

	broker.Unsubscribe(sub)
	assert.Equal(t, 0, broker.SubscriberCount())

	_, open := <-sub.C()
	assert.False(t, open)

	// Unsubscribing again is a no-op.
	broker.Unsubscribe(sub)

	// Publishing with no subscribers must not block or panic.
	broker.Publish(TopicStats, "ignored")
}

func TestCloseShutsDownSubscriptions(t *testing.T) {
	broker := NewBroker()

	sub := broker.Subscribe(TopicSystemHealth)
	broker.Close()

	_, open := <-sub.C()
	assert.False(t, open)
	assert.Equal(t, 0, broker.SubscriberCount())

	// Publish and a late Subscribe are safe after Close.
	broker.Publish(TopicSystemHealth, "ignored")
	late := broker.Subscribe(TopicSystemHealth)
	_, open = <-late.C()
	assert.False(t, open)

	broker.Close()
}

func TestSubscriberCount(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	assert.Equal(t, 0, broker.SubscriberCount())

	subs := make([]*Subscription, 0, 3)
	for i := 0; i < 3; i++ {
		subs = append(subs, broker.Subscribe(TopicStats))
	}
	assert.Equal(t, 3, broker.SubscriberCount())

	broker.Unsubscribe(subs[0])
	assert.Equal(t, 2, broker.SubscriberCount())
}

func TestConcurrentPublishAccountsForEveryEvent(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	sub := broker.Subscribe(TopicDeploymentStatus)

	const publishers = 8
	const perPublisher = 200

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				broker.Publish(TopicDeploymentStatus, fmt.Sprintf("%d-%d", p, i))
			}
		}(p)
	}

	received := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

drain:
	for {
		select {
		case <-sub.C():
			received++
		case <-done:
			break drain
		}
	}
	for {
		select {
		case <-sub.C():
			received++
		default:
			// Every published event was either delivered or counted as lag.
			assert.Equal(t, uint64(publishers*perPublisher), uint64(received)+sub.Lag())
			return
		}
	}
}
