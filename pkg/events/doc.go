/*
Package events provides an in-memory event broker for broadcasting
supervisor lifecycle events to interested subscribers.

The broker is topic-agnostic: every event is broadcast to every
subscriber, and subscribers filter by EventType themselves. Delivery
to subscribers never blocks: a subscriber with a full buffer simply
misses events rather than stalling the broadcast, so a slow consumer
cannot hold up the publisher (the Manager run-loop). Publish itself
waits only while the broker's 100-event queue is full, until the
broadcast loop drains it or the broker is stopped.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  Publisher (Manager, Unit) → Event Channel (buffer: 100)  │
	│                     │                                      │
	│              Broadcast Loop                                │
	│                     │                                      │
	│       Subscriber Channels (buffer: 50 each)                │
	└────────────────────────────────────────────────────────┘

# Event types

Service: initialized, started, stopped, reloaded, health
Member: joined, departed, suspect
Election: started, finished

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			log.Printf("%s: %s", event.Type, event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:         events.EventServiceStarted,
		ServiceGroup: "web.default",
		Message:      "run hook spawned, pid 4821",
	})

# Limitations

In-memory only, no persistence or replay, best-effort delivery. A
subscriber that needs guaranteed delivery (e.g. writing an audit log)
should drain its channel promptly and persist immediately; the broker
will not retry on its behalf.
*/
package events
