package common

import (
	"encoding/json"
	"sync"
)

// Wire prefixes for the event stream pushed to websocket clients.
//
//	ORDERC <ORDER_JSON>   - order created and placed
//	FILLED <ORDER_ID> <FILL_JSON> - secret released, fill recorded
//	STATUS <ORDER_ID> <NEW_STATUS> - order status transition
const (
	OrderCreatedEvent = "ORDERC"
	FillRecordedEvent = "FILLED"
	StatusEvent       = "STATUS"
)

// Broadcaster fans order lifecycle events out to registered receivers. Sends are
// best-effort: a receiver with a full channel misses the message rather than
// blocking the sender.
type Broadcaster struct {
	mu        sync.Mutex
	nextID    uint64
	receivers map[uint64]chan []byte
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		receivers: make(map[uint64]chan []byte),
	}
}

func (b *Broadcaster) RegisterReceiver(receiver chan []byte) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.receivers[id] = receiver
	b.nextID++
	return id
}

func (b *Broadcaster) UnregisterReceiver(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if receiver, exists := b.receivers[id]; exists {
		close(receiver)
		delete(b.receivers, id)
	}
}

func (b *Broadcaster) Broadcast(message []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, receiver := range b.receivers {
		select {
		case receiver <- message:
		default:
			// receiver is not keeping up, drop the message for it
		}
	}
}

// BroadcastOrderCreated emits an OrderCreatedEvent with the order snapshot.
func (b *Broadcaster) BroadcastOrderCreated(order *Order) {
	payload, err := json.Marshal(order)
	if err != nil {
		return
	}
	b.Broadcast(append([]byte(OrderCreatedEvent+" "), payload...))
}

// BroadcastFill emits a FillRecordedEvent for one recorded fill.
func (b *Broadcaster) BroadcastFill(orderID string, fill Fill) {
	payload, err := json.Marshal(fill)
	if err != nil {
		return
	}
	msg := append([]byte(FillRecordedEvent+" "+orderID+" "), payload...)
	b.Broadcast(msg)
}

// BroadcastStatus emits a StatusEvent for an order status transition.
func (b *Broadcaster) BroadcastStatus(orderID string, status OrderStatus) {
	b.Broadcast([]byte(StatusEvent + " " + orderID + " " + string(status)))
}

func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, receiver := range b.receivers {
		close(receiver)
		delete(b.receivers, id)
	}
	b.nextID = 0
}
