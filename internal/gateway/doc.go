// Package gateway wires the relay-gateway server together and exposes the
// HTTP API.
//
// # Components
//
// New constructs and connects:
//
//   - the SQLite message and campaign store
//   - the provider registry, filled from the device credentials file and
//     the optional carrier account
//   - the relay dispatcher for outbound sends
//   - the webhook ingestor for inbound events
//   - the conversation broadcaster feeding the SSE stream
//
// # HTTP Surface
//
// Health:
//
//	GET  /health              liveness
//	GET  /health/ready        store reachability
//
// Webhooks:
//
//	POST /webhooks/sms        inbound events from delivery backends
//
// API:
//
//	POST /api/relay                               send one message or a batch
//	GET  /api/conversations                       conversation summaries
//	GET  /api/conversations/{phone}/messages      one conversation's history
//	POST /api/campaigns                           register a campaign
//	GET  /api/campaigns                           recent campaigns
//	GET  /api/campaigns/{id}                      one campaign
//	PUT  /api/campaigns/{id}                      progress update
//	GET  /api/stats                               today's message counters
//	GET  /api/stream                              SSE live stream (?phone= to filter)
//
// # Lifecycle
//
// Run blocks until the context is canceled or the server fails, then
// performs a bounded graceful shutdown: HTTP server first, then the
// broadcaster, then the store.
package gateway
