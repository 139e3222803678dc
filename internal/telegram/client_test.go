package telegram_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tryonrelay/internal/telegram"
)

func TestSendPhotoPostsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/bot123:ABC/sendPhoto" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("chat_id"); got != "-1001" {
			t.Errorf("chat_id = %q", got)
		}
		if got := r.FormValue("caption"); got != "hola\nID Cliente: 1700000000000" {
			t.Errorf("caption = %q", got)
		}
		if got := r.FormValue("reply_to_message_id"); got != "" {
			t.Errorf("unexpected reply_to_message_id %q", got)
		}
		file, header, err := r.FormFile("photo")
		if err != nil {
			t.Errorf("photo part: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "jpegbytes" || header.Filename != "user.jpg" {
				t.Errorf("photo part = %q (%s)", data, header.Filename)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":77,"chat":{"id":-1001}}}`))
	}))
	defer srv.Close()

	client := telegram.New(srv.Client(), srv.URL, "123:ABC")
	msg, err := client.SendPhoto(context.Background(), telegram.Photo{
		ChatID:   "-1001",
		Data:     []byte("jpegbytes"),
		Filename: "user.jpg",
		Caption:  "hola\nID Cliente: 1700000000000",
	})
	if err != nil {
		t.Fatalf("SendPhoto() error = %v", err)
	}
	if msg.MessageID != 77 {
		t.Fatalf("MessageID = %d, want 77", msg.MessageID)
	}
}

func TestSendPhotoRejectsEmptyData(t *testing.T) {
	client := telegram.New(nil, "http://127.0.0.1:1", "123:ABC")
	if _, err := client.SendPhoto(context.Background(), telegram.Photo{ChatID: "1"}); err == nil {
		t.Fatal("expected error for empty photo")
	}
}

func TestSendMessageRepliesToMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":78}}`))
	}))
	defer srv.Close()

	client := telegram.New(srv.Client(), srv.URL, "123:ABC")
	msg, err := client.SendMessage(context.Background(), telegram.Text{ChatID: "-1001", Text: "fallback", ReplyTo: 77})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if msg.MessageID != 78 {
		t.Fatalf("MessageID = %d", msg.MessageID)
	}
	if got["reply_to_message_id"] != float64(77) || got["text"] != "fallback" || got["chat_id"] != "-1001" {
		t.Fatalf("unexpected payload %v", got)
	}
	if _, ok := got["parse_mode"]; ok {
		t.Fatal("plain text must not set parse_mode")
	}
}

func TestRequestErrorCarriesDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	client := telegram.New(srv.Client(), srv.URL, "123:ABC")
	_, err := client.SendMessage(context.Background(), telegram.Text{ChatID: "1", Text: "x"})

	var reqErr *telegram.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %T %v", err, err)
	}
	if reqErr.StatusCode != 400 || reqErr.Method != "sendMessage" || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("unexpected error %+v", reqErr)
	}
	if reqErr.Retryable() {
		t.Fatal("400 should not be retryable")
	}
}

func TestOKFalseIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"Too Many Requests"}`))
	}))
	defer srv.Close()

	client := telegram.New(srv.Client(), srv.URL, "123:ABC")
	if _, err := client.GetWebhookInfo(context.Background()); err == nil {
		t.Fatal("expected error when ok=false")
	}
}

func TestResolveAttachmentBuildsFileURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot123:ABC/getFile" || r.URL.Query().Get("file_id") != "AgAD-big" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"file_id":"AgAD-big","file_path":"photos/file_9.jpg"}}`))
	}))
	defer srv.Close()

	client := telegram.New(srv.Client(), srv.URL+"/", "123:ABC")
	got, err := client.ResolveAttachment(context.Background(), "AgAD-big")
	if err != nil {
		t.Fatalf("ResolveAttachment() error = %v", err)
	}
	if want := srv.URL + "/file/bot123:ABC/photos/file_9.jpg"; got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}
}

func TestGetFileWithoutPathFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"file_id":"x"}}`))
	}))
	defer srv.Close()

	client := telegram.New(srv.Client(), srv.URL, "123:ABC")
	if _, err := client.GetFile(context.Background(), "x"); err == nil {
		t.Fatal("expected error for missing file_path")
	}
}

func TestSetWebhookSendsSecret(t *testing.T) {
	var cfg telegram.WebhookConfig
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/setWebhook") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&cfg)
		_, _ = w.Write([]byte(`{"ok":true,"result":true,"description":"Webhook was set"}`))
	}))
	defer srv.Close()

	client := telegram.New(srv.Client(), srv.URL, "123:ABC")
	err := client.SetWebhook(context.Background(), telegram.WebhookConfig{
		URL:            "https://relay.example.com/telegram/webhook",
		SecretToken:    "s3cret",
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		t.Fatalf("SetWebhook() error = %v", err)
	}
	if cfg.SecretToken != "s3cret" || cfg.URL != "https://relay.example.com/telegram/webhook" {
		t.Fatalf("unexpected payload %+v", cfg)
	}
}

func TestTransportErrorDoesNotLeakToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	client := telegram.New(nil, base, "123:SECRET")
	_, err := client.GetWebhookInfo(context.Background())
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), "SECRET") {
		t.Fatalf("token leaked in error: %v", err)
	}
}

func TestBotIDFromToken(t *testing.T) {
	tests := map[string]int64{
		"123456:ABC-DEF": 123456,
		"abc:def":        0,
		"nocolon":        0,
		"":               0,
	}
	for token, want := range tests {
		if got := telegram.BotIDFromToken(token); got != want {
			t.Errorf("BotIDFromToken(%q) = %d, want %d", token, got, want)
		}
	}
}

func TestImageFileIDPrefersLargestPhoto(t *testing.T) {
	msg := &telegram.Message{Photo: []telegram.PhotoSize{
		{FileID: "small", Width: 90, Height: 90},
		{FileID: "big", Width: 1280, Height: 960},
		{FileID: "medium", Width: 320, Height: 240},
	}}
	if id, ok := msg.ImageFileID(); !ok || id != "big" {
		t.Fatalf("ImageFileID() = %q, %v", id, ok)
	}

	doc := &telegram.Message{Document: &telegram.Document{FileID: "doc", MimeType: "image/png"}}
	if id, ok := doc.ImageFileID(); !ok || id != "doc" {
		t.Fatalf("image document ImageFileID() = %q, %v", id, ok)
	}

	pdf := &telegram.Message{Document: &telegram.Document{FileID: "pdf", MimeType: "application/pdf"}}
	if _, ok := pdf.ImageFileID(); ok {
		t.Fatal("non-image document should not count as a photo")
	}
}
