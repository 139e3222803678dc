// Package correlation holds the mapping from request identifiers to the URL of
// the operator's reply photo.
//
// The Reply Listener is the only writer and the Status Query the only reader.
// MemoryStore keeps entries in process memory with a per-entry TTL and a
// background sweeper; its contents do not survive a restart. When a second
// reply arrives for an identifier the configured Policy either replaces the
// URL (recording the earlier one in History) or keeps the first.
package correlation
