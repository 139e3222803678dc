// Package ledger persists an audit trail of dispatched try-on requests and the
// webhook update ids already processed, backed by SQLite.
//
// The ledger is operational bookkeeping only: it lets operators list recent
// requests and lets the Reply Listener skip redelivered webhook updates. The
// correlation answer served to polling clients never comes from here, and
// reply URLs (which embed the bot token) are not written to disk.
package ledger
