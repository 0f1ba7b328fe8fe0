// Package broker connects vidflow to RabbitMQ.
//
// Consumer reads upload events from a durable queue and hands each message
// body to the router. Messages that were routed or ignored are acked;
// undecodable ones are nacked without requeue; a failed pipeline start is
// requeued so the upload is not lost across restarts. The consumer
// reconnects with a fixed delay when the connection drops.
//
// Publisher fans out execution status events on a direct exchange.
package broker
