// Package relay dispatches outbound messages to delivery backends and
// records the audit trail.
//
// The dispatcher validates before any network activity, resolves the
// backend through the provider registry, and classifies the attempt:
//
//   - accepted: an outbound record is appended and published; the relay
//     succeeds even when the append fails, because the message already left
//   - rejected or transport failure: a failed Outcome with the reason, no
//     record, nil error
//
// Only pre-flight problems (validation, unknown provider) surface as Go
// errors. Batch dispatch runs recipients sequentially and never aborts on
// one recipient's failure.
package relay
