// Package rabbitmqtest provides an in-memory rabbitmq.Channel for tests.
package rabbitmqtest

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel records declarations and publishes, and feeds consumers from Deliver
type Channel struct {
	mu         sync.Mutex
	consumers  map[string]chan amqp.Delivery
	published  []Published
	declared   []string
	prefetch   int
	closed     bool
	publishErr error
	nextTag    uint64
	acker      *Acknowledger
	onPublish  func(Published)
}

// Published is one recorded publish
type Published struct {
	Exchange string
	Key      string
	Msg      amqp.Publishing
}

// NewChannel creates an open fake channel
func NewChannel() *Channel {
	return &Channel{
		consumers: make(map[string]chan amqp.Delivery),
		acker:     &Acknowledger{},
	}
}

// Acker returns the acknowledger attached to delivered messages
func (c *Channel) Acker() *Acknowledger {
	return c.acker
}

// FailPublish makes subsequent publishes return err
func (c *Channel) FailPublish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

// OnPublish registers fn to run after every successful publish
func (c *Channel) OnPublish(fn func(Published)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPublish = fn
}

func (c *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

// Prefetch returns the last prefetch count set
func (c *Channel) Prefetch() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefetch
}

func (c *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch, ok := c.consumers[queue]
	if !ok {
		ch = make(chan amqp.Delivery, 16)
		c.consumers[queue] = ch
	}
	return ch, nil
}

func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.Queue{}, amqp.ErrClosed
	}
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

// Declared returns the declared queue names
func (c *Channel) Declared() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.declared...)
}

func (c *Channel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return amqp.ErrClosed
	}
	if c.publishErr != nil {
		err := c.publishErr
		c.mu.Unlock()
		return err
	}
	p := Published{Exchange: exchange, Key: key, Msg: msg}
	c.published = append(c.published, p)
	onPublish := c.onPublish
	c.mu.Unlock()

	if onPublish != nil {
		onPublish(p)
	}
	return nil
}

// Published returns every recorded publish
func (c *Channel) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// Deliver pushes msg to the consumer of queue, as the broker would
func (c *Channel) Deliver(queue string, msg amqp.Delivery) error {
	c.mu.Lock()
	ch, ok := c.consumers[queue]
	if !ok {
		c.mu.Unlock()
		return errors.New("rabbitmqtest: no consumer on " + queue)
	}
	c.nextTag++
	msg.DeliveryTag = c.nextTag
	msg.Acknowledger = c.acker
	c.mu.Unlock()

	ch <- msg
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, ch := range c.consumers {
		close(ch)
	}
	return nil
}

// Acknowledger records acks and nacks by delivery tag
type Acknowledger struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *Acknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *Acknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// Acked returns the acked delivery tags
func (a *Acknowledger) Acked() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.acked...)
}

// Nacked returns the nacked delivery tags and their requeue flags
func (a *Acknowledger) Nacked() ([]uint64, []bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.nacked...), append([]bool(nil), a.requeue...)
}

// Loopback delivers every publish on the default exchange to the consumer of
// the queue named by its routing key, like the broker's default exchange
func (c *Channel) Loopback() {
	c.OnPublish(func(p Published) {
		_ = c.Deliver(p.Key, DeliveryFrom(p))
	})
}

// DeliveryFrom converts a publish into the delivery a consumer would receive
func DeliveryFrom(p Published) amqp.Delivery {
	return amqp.Delivery{
		Headers:       p.Msg.Headers,
		ContentType:   p.Msg.ContentType,
		CorrelationId: p.Msg.CorrelationId,
		ReplyTo:       p.Msg.ReplyTo,
		MessageId:     p.Msg.MessageId,
		Timestamp:     p.Msg.Timestamp,
		Type:          p.Msg.Type,
		AppId:         p.Msg.AppId,
		Exchange:      p.Exchange,
		RoutingKey:    p.Key,
		Body:          p.Msg.Body,
	}
}
