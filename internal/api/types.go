package api

import (
	"time"

	"tryonrelay/internal/correlation"
	"tryonrelay/internal/ledger"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// MissingFieldsMessage is the storefront-facing error for incomplete submissions.
const MissingFieldsMessage = "Faltan datos"

// SubmitResponse answers a try-on submission.
type SubmitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse answers a status poll.
type StatusResponse struct {
	Ready      bool   `json:"ready"`
	URL        string `json:"url,omitempty"`
	ResolvedAt string `json:"resolved_at,omitempty"`
	Revisions  int    `json:"revisions,omitempty"`
}

// WebhookAck is returned to the chat relay for every accepted delivery.
type WebhookAck struct {
	OK bool `json:"ok"`
}

// Health reports daemon liveness.
type Health struct {
	Status  string `json:"status"`
	Ledger  bool   `json:"ledger"`
	Events  bool   `json:"events"`
	Pending int    `json:"queued_enrichment,omitempty"`
}

// ErrorResponse carries an error message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RequestRecord is a dispatched request as listed by the admin API.
type RequestRecord struct {
	ID               string `json:"id"`
	ChatID           string `json:"chat_id"`
	MessageID        int64  `json:"message_id"`
	RequesterName    string `json:"requester_name"`
	CatalogRef       string `json:"catalog_ref"`
	ProductLabel     string `json:"product_label"`
	Enrichment       string `json:"enrichment"`
	EnrichmentDetail string `json:"enrichment_detail,omitempty"`
	Replies          int    `json:"replies"`
	CreatedAt        string `json:"created_at,omitempty"`
	ResolvedAt       string `json:"resolved_at,omitempty"`
}

// RequestListResponse wraps a list of request records.
type RequestListResponse struct {
	Items []RequestRecord `json:"items"`
}

// FromStatus converts a correlation status into its wire form.
func FromStatus(st correlation.Status) StatusResponse {
	if !st.Ready {
		return StatusResponse{}
	}
	return StatusResponse{
		Ready:      true,
		URL:        st.URL,
		ResolvedAt: formatTime(st.ResolvedAt),
		Revisions:  st.Revisions,
	}
}

// FromLedgerRecord converts a ledger row into its wire form.
func FromLedgerRecord(rec ledger.Record) RequestRecord {
	out := RequestRecord{
		ID:               rec.ID,
		ChatID:           rec.ChatID,
		MessageID:        rec.MessageID,
		RequesterName:    rec.RequesterName,
		CatalogRef:       rec.CatalogRef,
		ProductLabel:     rec.ProductLabel,
		Enrichment:       string(rec.Enrichment),
		EnrichmentDetail: rec.EnrichmentDetail,
		Replies:          rec.Replies,
		CreatedAt:        formatTime(rec.CreatedAt),
	}
	if rec.ResolvedAt != nil {
		out.ResolvedAt = formatTime(*rec.ResolvedAt)
	}
	return out
}

// FromLedgerRecords converts a slice of ledger rows.
func FromLedgerRecords(recs []ledger.Record) []RequestRecord {
	out := make([]RequestRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromLedgerRecord(rec))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
