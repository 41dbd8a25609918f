package session

import (
	"log"

	"rollcall-picker/models"
)

// EventType names a session event
type EventType string

const (
	EventLoaded      EventType = "loaded"
	EventHighlight   EventType = "highlight"
	EventSettled     EventType = "settled"
	EventWinnerReady EventType = "winner_ready"
	EventReset       EventType = "reset"
)

// Event is delivered to subscribers in the order the session produced it
type Event struct {
	Type         EventType       `json:"type"`
	Section      string          `json:"section"`
	Run          uint64          `json:"run,omitempty"`
	StudentID    string          `json:"studentId,omitempty"`
	Student      *models.Student `json:"student,omitempty"`
	StudentCount int             `json:"studentCount,omitempty"`
}

// Subscribe returns a channel of session events and a function that ends
// the subscription. A subscriber that falls behind misses events rather
// than stalling the session. The channel is closed when the subscription
// ends or the session closes.
func (c *Controller) Subscribe() (<-chan Event, func(), error) {
	ch := make(chan Event, c.cfg.EventBuffer)
	var id int
	if err := c.do(func() {
		id = c.nextSub
		c.nextSub++
		c.subs[id] = ch
	}); err != nil {
		return nil, nil, err
	}
	cancel := func() {
		_ = c.do(func() {
			if sub, ok := c.subs[id]; ok {
				close(sub)
				delete(c.subs, id)
			}
		})
	}
	return ch, cancel, nil
}

// emit must run on the loop
func (c *Controller) emit(ev Event) {
	ev.Section = c.section
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("Dropping %s event for slow subscriber %d on section %s", ev.Type, id, c.section)
		}
	}
}
