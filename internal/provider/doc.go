// Package provider contains the delivery backend adapters.
//
// Each adapter translates a canonical send request into one backend's
// protocol and classifies the raw response into a typed SendResult:
// accepted, rejected, or transport failure. Adapters never return Go errors
// across their boundary; a hung backend is cut off by a bounded timeout and
// reported as a transport failure.
//
// Two backend families exist:
//
//   - DeviceGateway: cloud-connected phone gateways authenticated with a
//     static per-device basic-auth pair. Many logical devices, one relay
//     mechanism; callers may supply their own credential bundle.
//   - Carrier: a carrier messaging API requiring E.164 recipients and a
//     short-lived signed bearer token.
//
// The Registry resolves a Selector (named provider, inline credentials, or
// empty for the default) to a concrete adapter. The shared httpSender keeps
// request building, timeouts and status classification in one place so
// per-backend files only differ in auth and payload shape.
//
// A backend that answers 2xx with an empty or unparsable body still counts
// as accepted, with a synthesized local id; several real gateways omit
// bodies on success.
package provider
