// Package dispatch forwards try-on submissions to the operator chat.
//
// Submit validates the request, assigns a request identifier, and sends the
// requester photo with a caption that embeds the identifier. That primary send
// is the only step the HTTP caller waits for. The catalog image follows
// asynchronously on the Enricher worker pool as a reply to the primary
// message, degrading to a plain-text locator when the image cannot be
// delivered.
package dispatch
