// Package caption renders operator chat captions for try-on requests and
// recovers the request identifier from the text an operator replies to.
package caption

import (
	"path"
	"regexp"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tryonrelay/internal/reqid"
)

// IDLabel prefixes the identifier line in every message the relay sends.
const IDLabel = "ID Cliente"

// Telegram limits, counted in UTF-16 code units.
const (
	MaxCaptionLength = 1024
	MaxTextLength    = 4096
)

// maxLabelLength caps the product label so the requester name keeps most of
// the caption budget.
const maxLabelLength = 200

const ellipsis = "…"

// idLine matches an identifier line on its own. Both "ID:" and "ID Cliente:"
// are accepted so captions edited by hand still correlate.
var idLine = regexp.MustCompile(`(?m)^ID(?: Cliente)?:[ \t]*(\d{13,19})[ \t]*\r?$`)

var upper = cases.Upper(language.Spanish)

// Request is the data rendered into the primary caption.
type Request struct {
	ID            reqid.ID
	RequesterName string
	CatalogRef    string
}

// Build renders the caption sent with the requester photo. The identifier
// line is always last.
func Build(req Request) string {
	const (
		header    = "💎 NUEVA SOLICITUD\n\n👤 Cliente: "
		labelLead = "\n💍 Joya seleccionada: "
	)
	label := clip(ProductLabel(req.CatalogRef), maxLabelLength)
	id := idText(req.ID)
	room := MaxCaptionLength - Length(header) - Length(labelLead) - Length(label) - 1 - Length(id)

	var b strings.Builder
	b.WriteString(header)
	b.WriteString(clip(singleLine(req.RequesterName), room))
	b.WriteString(labelLead)
	b.WriteString(label)
	b.WriteByte('\n')
	b.WriteString(id)
	return b.String()
}

// CatalogCaption is attached to the catalog photo sent as a reply to the
// primary message.
func CatalogCaption(id reqid.ID, catalogRef string) string {
	return "💍 Referencia de catálogo: " + clip(ProductLabel(catalogRef), maxLabelLength) + "\n" + idText(id)
}

// FallbackText is sent instead of the catalog photo when it cannot be
// delivered. It carries the raw locator so the operator can open it.
func FallbackText(id reqid.ID, catalogRef string) string {
	const lead = "📎 Joya seleccionada: "
	tail := "\n" + idText(id)
	return lead + clip(singleLine(catalogRef), MaxTextLength-Length(lead)-Length(tail)) + tail
}

// Length counts s in UTF-16 code units, the unit Telegram limits use.
func Length(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

// clip shortens s to at most limit units, marking the cut with an ellipsis.
// Cuts fall on rune boundaries.
func clip(s string, limit int) string {
	if Length(s) <= limit {
		return s
	}
	if limit <= 0 {
		return ""
	}
	budget := limit - Length(ellipsis)
	n := 0
	for i, r := range s {
		w := runeUnits(r)
		if n+w > budget {
			return strings.TrimRight(s[:i], " ") + ellipsis
		}
		n += w
	}
	return s
}

func runeUnits(r rune) int {
	if w := utf16.RuneLen(r); w > 0 {
		return w
	}
	return 1
}

// Extract returns the identifier embedded in text. When several identifier
// lines are present the last one wins.
func Extract(text string) (reqid.ID, bool) {
	matches := idLine.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	return reqid.Parse(matches[len(matches)-1][1])
}

// ProductLabel derives the display name of a catalog item from its locator:
// the base name without extension, upper-cased.
func ProductLabel(catalogRef string) string {
	ref := strings.TrimSpace(catalogRef)
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.ReplaceAll(ref, "\\", "/")
	base := path.Base(ref)
	if base == "." || base == "/" {
		return ""
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	return upper.String(singleLine(base))
}

func idText(id reqid.ID) string {
	return IDLabel + ": " + id.String()
}

// singleLine keeps user-provided values from injecting their own lines into
// the caption.
func singleLine(s string) string {
	s = strings.TrimSpace(s)
	return strings.Join(strings.Fields(s), " ")
}
