// Package client implements the JSON-RPC request lifecycle over a
// transport: request id bookkeeping, supersede-on-duplicate
// cancellation, the background read loop, and dispatch of inbound
// messages to a pluggable Handler.
//
// The client enforces at most one in-flight request per method name.
// Sending a request while an older request of the same method is still
// pending cancels the older one locally and asks the server to abandon
// it with a $/cancelRequest notification. A late response for a
// cancelled or unknown id is silently dropped.
//
// No timeouts are enforced here. A hung server blocks the read loop
// forever; callers that need bounded latency must layer their own
// timeout above this package.
package client
