package mqtt

import "log"

// queuedMsg is a publish held back while the broker is unreachable.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// offlineQueue holds publishes made while disconnected, oldest first.
//
// Retained messages describe current state, so a newer retained message on
// a topic replaces the queued one instead of queueing behind it. A slider
// dragged while offline therefore replays as a single brightness update.
// Event messages are kept in order until the queue is full, after which the
// oldest entry is dropped. Callers serialize access.
type offlineQueue struct {
	msgs    []queuedMsg
	limit   int
	warned  bool
	dropped uint64
}

func newOfflineQueue(limit int) *offlineQueue {
	if limit <= 0 {
		limit = 1
	}
	return &offlineQueue{limit: limit}
}

func (q *offlineQueue) add(msg queuedMsg) {
	if msg.retained {
		for i, m := range q.msgs {
			if m.retained && m.topic == msg.topic {
				q.msgs = append(q.msgs[:i], q.msgs[i+1:]...)
				break
			}
		}
	}
	if len(q.msgs) == q.limit {
		if !q.warned {
			log.Printf("mqtt: offline queue full (%d messages), dropping oldest", q.limit)
			q.warned = true
		}
		q.dropped++
		q.msgs = q.msgs[1:]
	}
	q.msgs = append(q.msgs, msg)
}

// flush returns the queued messages and empties the queue.
func (q *offlineQueue) flush() []queuedMsg {
	if len(q.msgs) == 0 {
		return nil
	}
	out := q.msgs
	q.msgs = nil
	q.warned = false
	return out
}

func (q *offlineQueue) size() int {
	return len(q.msgs)
}
