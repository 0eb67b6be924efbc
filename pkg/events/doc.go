/*
Package events provides an in-memory event broker for Paddock's pub/sub messaging.

The events package implements a lightweight event bus for broadcasting
deployment and health events to interested subscribers. It supports
topic-based subscriptions with non-blocking delivery, decoupling the
components that produce state changes (deployment coordinator, health
sampler) from the components that surface them (websocket fan-out).

# Architecture

Paddock's event system provides non-blocking pub/sub messaging with
buffered per-subscription queues:

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                   │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Topic-filtered subscriptions             │          │
	│  │  - Non-blocking publish                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │                                              │          │
	│  │  Publisher → fan-out under read lock        │          │
	│  │       ↓                                      │          │
	│  │  Topic match per subscription               │          │
	│  │       ↓                                      │          │
	│  │  Subscription queues (buffer: 50 each,      │          │
	│  │  oldest evicted when full, lag counted)     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Event Topics                      │          │
	│  │                                              │          │
	│  │  stats:                                     │          │
	│  │    - dashboard statistics snapshots         │          │
	│  │                                              │          │
	│  │  deployment_status:                         │          │
	│  │    - per-device deployment transitions      │          │
	│  │                                              │          │
	│  │  system_health:                             │          │
	│  │    - service/database/disk snapshots        │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Subscribers                      │          │
	│  │                                              │          │
	│  │  Fan-out hub: push events to websockets     │          │
	│  │  Tests and tooling: observe transitions     │          │
	│  │  Integrations: webhooks (future)            │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Topic:
  - Typed string naming a stream of related events
  - TopicStats, TopicDeploymentStatus, TopicSystemHealth

Event:
  - Value type materialized at publish time
  - Unique uuid ID, topic, UTC timestamp, opaque payload
  - Payload is the producer's own type (types.DeploymentEvent,
    types.DashboardStats, sysmon.Snapshot)

Subscription:
  - Buffered delivery queue (capacity 50)
  - Created with an explicit topic set; empty set receives all topics
  - Lag() reports how many events were evicted from its queue

Broker:
  - Registry of live subscriptions guarded by RWMutex
  - Publish fans out under the read lock; Subscribe/Unsubscribe take
    the write lock
  - Close tears down every subscription for shutdown

# Event Flow

1. A producer calls Publish(topic, payload).
2. The broker stamps the event (uuid, UTC time) and takes the read lock.
3. Every subscription matching the topic is offered the event without
   blocking: while its queue is full, the oldest queued event is evicted
   and the lag counter incremented, then the new event is enqueued.
4. Consumers range over Subscription.C() until it is closed by
   Unsubscribe or Close.

Per-subscription ordering follows channel FIFO, so events for one topic
arrive in publish order (minus evictions). Ordering across topics is
unspecified.

# Usage

Publishing:

	broker := events.NewBroker()

	broker.Publish(events.TopicDeploymentStatus, types.DeploymentEvent{
		Hostname: "KXP2-MONZ-001",
		Status:   "downloading",
	})

Subscribing:

	sub := broker.Subscribe(events.TopicDeploymentStatus, events.TopicSystemHealth)
	defer broker.Unsubscribe(sub)

	for ev := range sub.C() {
		switch ev.Topic {
		case events.TopicDeploymentStatus:
			push(ev.Payload)
		case events.TopicSystemHealth:
			cache(ev.Payload)
		}
	}

Watching for lag:

	if sub.Lag() > 0 {
		logger.Warn().Uint64("lag", sub.Lag()).Msg("subscriber falling behind")
	}

Shutdown:

	broker.Close() // closes every subscription channel, Publish becomes no-op

# Integration Points

This package integrates with:

  - pkg/coordinator: Publishes deployment status transitions
  - pkg/sysmon: Publishes periodic system health snapshots
  - pkg/fanout: Subscribes and forwards events to websocket clients
  - pkg/metrics: Counts published and dropped events per topic

# Design Patterns

Drop-Oldest Delivery:
  - A saturated subscriber loses its oldest queued events, never the
    newest: live dashboards need the latest state, and a stale snapshot
    is worthless once a fresher one exists
  - Eviction is accounted per subscription (Lag) and per topic
    (paddock_events_dropped_total)

Non-Blocking Publish:
  - Publish holds only a read lock and performs no channel waits
  - A dead or slow subscriber can never stall the deployment path

Value Events:
  - Events are plain values; subscribers cannot mutate broker state
  - Payloads should be treated as read-only

# Performance Characteristics

Publish Overhead:
  - O(subscribers) channel offers per event
  - One uuid allocation per event
  - Microseconds for typical subscriber counts

Queue Sizing:
  - Capacity 50 per subscription
  - At the sampler's 5s cadence a full queue covers minutes of backlog;
    saturation indicates a stuck consumer, not bursty load

# Troubleshooting

Subscriber misses events:
  - Symptom: Lag() grows, dashboard skips intermediate states
  - Cause: Consumer goroutine blocked or too slow
  - Check: paddock_events_dropped_total by topic
  - Solution: Drain faster; drop-oldest already keeps the newest state

Publish appears to do nothing:
  - Symptom: No events delivered anywhere
  - Check: Subscription topic set includes the published topic
  - Check: Broker not closed early in shutdown ordering

# See Also

  - pkg/fanout: Websocket push channel built on this broker
  - pkg/sysmon: Periodic health publisher
  - pkg/coordinator: Deployment status publisher
*/
package events
