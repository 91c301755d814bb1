// Package webhook ingests inbound message events posted by delivery
// backends.
//
// The contract with backends is acknowledge-by-default: once an event body
// parses, the ingestor answers 200 even when processing fails, carrying
// success=false in the response instead. Only an unparsable body gets a
// 5xx, because redelivering it might succeed after a fix. This keeps flaky
// store errors from turning into backend retry storms of already-seen
// events.
//
// Inbound "received" events become stored records with the server's
// receive time; the backend's own message id and timestamp travel along in
// the backend reference field. Status callbacks (sent, delivered, failed)
// are logged and acknowledged without touching the store.
package webhook
