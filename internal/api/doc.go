// Package api defines the JSON payloads served by the relay's HTTP surface and
// a small client the CLI uses to read them.
//
// # Key Types
//
// SubmitResponse: answer to POST /send-to-telegram. Keeps the storefront's
// existing {"success":...} shape.
//
// StatusResponse: answer to GET /status/{id}; pending is {"ready":false}.
//
// RequestRecord/RequestListResponse: ledger rows for GET /api/requests.
//
// # Converters
//
// FromStatus: correlation.Status -> StatusResponse.
//
// FromLedgerRecord: ledger.Record -> RequestRecord.
//
// # Design Notes
//
// Public endpoints use the snake_case field names the storefront already
// polls. Timestamps use RFC3339 with milliseconds.
package api
