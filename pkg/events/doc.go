/*
Package events provides an in-memory broker for gateway lifecycle events.

The service logger orchestrator and the hosted happ handlers publish events
(clone created, clone deleted, happ enabled, pass completed, ...) to a Broker.
Subscribers receive every event on a buffered channel; the journal in
pkg/storage is the main subscriber and persists them for operators.

Publishing never blocks. Events are dropped when the broker queue or a
subscriber buffer is full, so nothing in the decision path depends on delivery.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.AppID)
		}
	}()
*/
package events
