package testsupport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// TelegramCall is one request received by a fake Bot API.
type TelegramCall struct {
	Method  string
	ChatID  string
	Caption string
	Text    string
	ReplyTo int64
	Photo   []byte
	FileID  string
	// URL and Secret are set for setWebhook calls.
	URL    string
	Secret string
}

// TelegramServer is an httptest-backed fake of the Bot API methods the relay
// uses. Sent messages get increasing ids starting at 100.
type TelegramServer struct {
	*httptest.Server

	mu       sync.Mutex
	calls    []TelegramCall
	nextID   int64
	failures map[string]int
	holds    map[string]chan struct{}
	notify   chan TelegramCall
	webhook  string
}

// NewTelegramServer starts a fake Bot API and closes it at test cleanup.
func NewTelegramServer(t testing.TB) *TelegramServer {
	t.Helper()
	ts := &TelegramServer{nextID: 100, failures: map[string]int{}, holds: map[string]chan struct{}{}, notify: make(chan TelegramCall, 64)}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.Close)
	return ts
}

// FailNext makes the next n calls to method answer with HTTP 500.
func (ts *TelegramServer) FailNext(method string, n int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.failures[method] = n
}

// Hold makes calls to method wait before answering until the returned
// release func is called. The call is recorded before it waits.
func (ts *TelegramServer) Hold(method string) (release func()) {
	gate := make(chan struct{})
	ts.mu.Lock()
	ts.holds[method] = gate
	ts.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			ts.mu.Lock()
			delete(ts.holds, method)
			ts.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns a snapshot of received calls.
func (ts *TelegramServer) Calls() []TelegramCall {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]TelegramCall(nil), ts.calls...)
}

// CallsTo returns received calls for method.
func (ts *TelegramServer) CallsTo(method string) []TelegramCall {
	var out []TelegramCall
	for _, c := range ts.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Received delivers every call as it is handled.
func (ts *TelegramServer) Received() <-chan TelegramCall {
	return ts.notify
}

func (ts *TelegramServer) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	method := parts[len(parts)-1]
	call := TelegramCall{Method: method}

	switch {
	case strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/"):
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			call.ChatID = r.FormValue("chat_id")
			call.Caption = r.FormValue("caption")
			call.ReplyTo, _ = strconv.ParseInt(r.FormValue("reply_to_message_id"), 10, 64)
			if f, _, err := r.FormFile("photo"); err == nil {
				call.Photo, _ = io.ReadAll(f)
				_ = f.Close()
			}
		}
	case r.Method == http.MethodPost:
		var body struct {
			ChatID  string `json:"chat_id"`
			Text    string `json:"text"`
			ReplyTo int64  `json:"reply_to_message_id"`
			URL     string `json:"url"`
			Secret  string `json:"secret_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		call.ChatID, call.Text, call.ReplyTo = body.ChatID, body.Text, body.ReplyTo
		call.URL, call.Secret = body.URL, body.Secret
	default:
		call.FileID = r.URL.Query().Get("file_id")
	}

	ts.mu.Lock()
	ts.calls = append(ts.calls, call)
	failing := ts.failures[method] > 0
	if failing {
		ts.failures[method]--
	}
	id := ts.nextID
	if !failing && (method == "sendPhoto" || method == "sendMessage") {
		ts.nextID++
	}
	if !failing && method == "setWebhook" {
		ts.webhook = call.URL
	}
	webhook := ts.webhook
	gate := ts.holds[method]
	ts.mu.Unlock()

	select {
	case ts.notify <- call:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if failing {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":500,"description":"Internal Server Error"}`))
		return
	}

	switch method {
	case "sendPhoto", "sendMessage":
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"chat":{"id":%s}}}`, id, jsonNumberOr(call.ChatID, "0"))
	case "getFile":
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"file_id":%q,"file_path":"photos/%s.jpg"}}`, call.FileID, call.FileID)
	case "setWebhook":
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	case "getWebhookInfo":
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"url":%q,"pending_update_count":0}}`, webhook)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func jsonNumberOr(value, fallback string) string {
	if _, err := strconv.ParseInt(value, 10, 64); err != nil {
		return fallback
	}
	return value
}
