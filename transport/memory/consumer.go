package memory

import (
	"sort"
	"time"

	"github.com/drblury/jetflow/internal/runtime/broker"
	"github.com/drblury/jetflow/internal/runtime/config"
)

// Consumer is a durable pull consumer over one stream.
type Consumer struct {
	broker  *Broker
	stream  *stream
	durable string
	filters []string
	policy  config.ConsumerPolicy

	// cursor indexes the next never-delivered message in stream.msgs.
	cursor     int
	deliveries uint64
	tracked    map[uint64]*delivery
}

type delivery struct {
	msg          *stored
	numDelivered uint64
	inflight     bool
	done         bool
	// redeliverAt is when an unsettled (or expired) delivery becomes eligible again.
	redeliverAt time.Time
}

func (c *Consumer) startIndex() int {
	msgs := c.stream.msgs
	switch c.policy.DeliverPolicy {
	case "new":
		return len(msgs)
	case "last":
		for i := len(msgs) - 1; i >= 0; i-- {
			if c.matches(msgs[i].subject) {
				return i
			}
		}
		return len(msgs)
	case "by_start_time":
		if c.policy.OptStartTime == nil {
			return 0
		}
		for i, m := range msgs {
			if !m.at.Before(*c.policy.OptStartTime) {
				return i
			}
		}
		return len(msgs)
	}
	return 0
}

func (c *Consumer) matches(subject string) bool {
	for _, f := range c.filters {
		if f == subject || SubjectMatches(f, subject) {
			return true
		}
	}
	return false
}

// Fetch returns up to batch messages, waiting at most timeout for the first
// one to become available.
func (c *Consumer) Fetch(batch int, timeout time.Duration) ([]broker.Message, error) {
	if batch <= 0 {
		batch = 1
	}
	b := c.broker
	deadline := b.now().Add(timeout)

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrClosed
		}
		msgs, wake := c.collect(batch)
		changed := b.changed
		b.mu.Unlock()

		if len(msgs) > 0 {
			return msgs, nil
		}

		now := b.now()
		if !now.Before(deadline) {
			return nil, broker.ErrNoMessages
		}
		wait := deadline.Sub(now)
		if !wake.IsZero() && wake.Sub(now) < wait {
			wait = wake.Sub(now)
		}
		timer := time.NewTimer(wait)
		select {
		case <-changed:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// collect delivers what is available now and reports the earliest time a
// pending redelivery becomes due. Callers hold the broker lock.
func (c *Consumer) collect(batch int) ([]broker.Message, time.Time) {
	now := c.broker.now()
	var (
		out  []broker.Message
		wake time.Time
	)

	inflight := 0
	var due []*delivery
	for _, d := range c.tracked {
		if d.done {
			continue
		}
		if d.inflight && d.redeliverAt.IsZero() {
			inflight++
			continue
		}
		if now.Before(d.redeliverAt) {
			if d.inflight {
				inflight++
			}
			if wake.IsZero() || d.redeliverAt.Before(wake) {
				wake = d.redeliverAt
			}
			continue
		}
		if c.policy.MaxDeliver > 0 && d.numDelivered >= uint64(c.policy.MaxDeliver) {
			d.done = true
			continue
		}
		due = append(due, d)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].msg.seq < due[j].msg.seq })

	room := func() bool {
		if len(out) >= batch {
			return false
		}
		return c.policy.MaxAckPending <= 0 || inflight+len(out) < c.policy.MaxAckPending
	}

	for _, d := range due {
		if !room() {
			return out, wake
		}
		out = append(out, c.deliver(d, now))
	}

	for c.cursor < len(c.stream.msgs) && room() {
		m := c.stream.msgs[c.cursor]
		c.cursor++
		if !c.matches(m.subject) {
			continue
		}
		d := &delivery{msg: m}
		c.tracked[m.seq] = d
		out = append(out, c.deliver(d, now))
	}
	return out, wake
}

func (c *Consumer) deliver(d *delivery, now time.Time) broker.Message {
	c.deliveries++
	d.numDelivered++
	d.inflight = true
	d.redeliverAt = time.Time{}
	if c.policy.AckWait > 0 {
		d.redeliverAt = now.Add(c.policy.AckWait)
	}
	if c.policy.AckPolicy == "none" {
		d.done = true
	}

	return &Message{
		subject:  d.msg.subject,
		data:     d.msg.data,
		headers:  d.msg.headers.Clone(),
		consumer: c,
		delivery: d,
		meta: broker.MessageMetadata{
			Stream:           c.stream.name,
			Consumer:         c.durable,
			StreamSequence:   d.msg.seq,
			ConsumerSequence: c.deliveries,
			NumDelivered:     d.numDelivered,
			NumPending:       c.pending(),
			Timestamp:        d.msg.at,
		},
	}
}

func (c *Consumer) pending() uint64 {
	var n uint64
	for _, m := range c.stream.msgs[c.cursor:] {
		if c.matches(m.subject) {
			n++
		}
	}
	return n
}

// settle acks or terms a delivery when done is set, otherwise schedules its
// redelivery after redeliverIn. Settlements from an earlier delivery of the
// same message are ignored.
func (c *Consumer) settle(d *delivery, attempt uint64, done bool, redeliverIn time.Duration) {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if d.done || d.numDelivered != attempt {
		return
	}
	if done {
		d.done = true
		delete(c.tracked, d.msg.seq)
	} else {
		d.inflight = false
		d.redeliverAt = b.now().Add(redeliverIn)
	}
	b.signal()
}

func (c *Consumer) touch(d *delivery, attempt uint64) {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if !d.done && d.inflight && d.numDelivered == attempt && c.policy.AckWait > 0 {
		d.redeliverAt = b.now().Add(c.policy.AckWait)
	}
}
