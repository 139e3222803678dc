// Package daemon coordinates the long-running tryonrelay process.
//
// It wires configuration, the chat-relay client, the correlation store, the
// dispatcher's enrichment pool, the reply listener, and the optional ledger and
// event publisher into a single lifecycle with flock-based locking to prevent
// multiple instances. The daemon owns the HTTP surface: request submission,
// status polling, the Telegram webhook, health, and the admin request listing.
//
// Keep orchestration logic here: correlation and dispatch rules live in their
// respective packages while the daemon focuses on startup, shutdown, and
// request plumbing.
package daemon
