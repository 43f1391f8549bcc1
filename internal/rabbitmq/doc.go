// Package rabbitmq provides the RabbitMQ plumbing behind the AMQP invocation transport.
//
// This package includes:
//   - ConnectionManager: dials the broker and reconnects with backoff when the connection drops
//   - Consumer: consumes a queue and acknowledges each delivery after its handler returns
//   - DeclareQueue: declares the durable queue invocations arrive on
//
// Components work against the Channel interface, which *amqp.Channel satisfies.
package rabbitmq
