// Package conversation fans recorded messages out to live subscribers.
//
// The Broadcaster is in-memory pub/sub keyed by phone number, with KeyAll
// as a firehose key that receives every conversation. The relay dispatcher
// and webhook ingestor publish each message after it is stored; HTTP stream
// handlers subscribe and forward.
//
// Delivery is best-effort: sends are non-blocking and a slow subscriber
// drops messages rather than stalling the publisher. Subscribers that need
// history read it from the store before subscribing.
package conversation
