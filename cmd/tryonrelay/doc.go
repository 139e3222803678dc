// Command tryonrelay is the operator CLI for the try-on relay: it runs the
// daemon in the foreground, polls request status, lists dispatched requests
// and manages the Telegram webhook registration.
package main
