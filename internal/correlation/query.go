package correlation

import (
	"time"

	"tryonrelay/internal/reqid"
)

// Status is the answer to a polling client.
type Status struct {
	Ready      bool
	URL        string
	ResolvedAt time.Time
	Revisions  int
}

// Query reports whether id has been resolved. Unknown identifiers are pending;
// a never-dispatched identifier is indistinguishable from an unanswered one.
func Query(store Store, id reqid.ID) Status {
	if store == nil {
		return Status{}
	}
	entry, ok := store.Get(id)
	if !ok {
		return Status{}
	}
	return Status{Ready: true, URL: entry.URL, ResolvedAt: entry.ResolvedAt, Revisions: entry.Revisions}
}
