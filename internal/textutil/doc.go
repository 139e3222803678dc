// Package textutil cleans client-supplied text before it is forwarded to the
// chat relay.
package textutil
