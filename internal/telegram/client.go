// Package telegram is a small Bot API client covering what the relay needs:
// sending photos and text to the operator chat, resolving reply attachments to
// download URLs, and managing the webhook registration.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

const maxResponseBytes = 1 << 20

// Client talks to the Bot API over HTTP.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// New constructs a client. A nil httpClient gets a 60s timeout.
func New(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
	}
}

// BotID returns the numeric bot id encoded before the colon of the token.
func (c *Client) BotID() int64 {
	return BotIDFromToken(c.token)
}

// BotIDFromToken parses the "<id>:<secret>" token format. Zero means unknown.
func BotIDFromToken(token string) int64 {
	head, _, ok := strings.Cut(strings.TrimSpace(token), ":")
	if !ok {
		return 0
	}
	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// Photo describes a sendPhoto call.
type Photo struct {
	ChatID   string
	Data     []byte
	Filename string
	Caption  string
	// ReplyTo threads the photo under an earlier message when non-zero.
	ReplyTo int64
}

// Text describes a sendMessage call.
type Text struct {
	ChatID  string
	Text    string
	ReplyTo int64
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
	ReplyToMessageID      int64  `json:"reply_to_message_id,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// SendPhoto uploads p.Data as a photo and returns the sent message.
func (c *Client) SendPhoto(ctx context.Context, p Photo) (Message, error) {
	if len(p.Data) == 0 {
		return Message{}, errors.New("telegram sendPhoto: empty photo")
	}
	filename := strings.TrimSpace(p.Filename)
	if filename == "" {
		filename = "photo.jpg"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{{"chat_id", p.ChatID}}
	if p.Caption != "" {
		fields = append(fields, [2]string{"caption", p.Caption})
	}
	if p.ReplyTo != 0 {
		fields = append(fields, [2]string{"reply_to_message_id", strconv.FormatInt(p.ReplyTo, 10)})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return Message{}, fmt.Errorf("telegram sendPhoto: %w", err)
		}
	}
	part, err := mw.CreateFormFile("photo", filename)
	if err != nil {
		return Message{}, fmt.Errorf("telegram sendPhoto: %w", err)
	}
	if _, err := part.Write(p.Data); err != nil {
		return Message{}, fmt.Errorf("telegram sendPhoto: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Message{}, fmt.Errorf("telegram sendPhoto: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendPhoto"), &body)
	if err != nil {
		return Message{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var msg Message
	if err := c.do(req, "sendPhoto", &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// SendMessage sends plain text (no parse mode) and returns the sent message.
func (c *Client) SendMessage(ctx context.Context, t Text) (Message, error) {
	var msg Message
	err := c.postJSON(ctx, "sendMessage", sendMessageRequest{
		ChatID:                t.ChatID,
		Text:                  t.Text,
		DisableWebPagePreview: true,
		ReplyToMessageID:      t.ReplyTo,
	}, &msg)
	return msg, err
}

// GetFile looks up the download path of an uploaded file.
func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return File{}, errors.New("telegram getFile: missing file_id")
	}
	endpoint := c.methodURL("getFile") + "?file_id=" + url.QueryEscape(fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return File{}, err
	}
	var file File
	if err := c.do(req, "getFile", &file); err != nil {
		return File{}, err
	}
	if strings.TrimSpace(file.FilePath) == "" {
		return File{}, errors.New("telegram getFile: missing file_path")
	}
	return file, nil
}

// FileURL builds the download URL for a path returned by GetFile. The URL
// embeds the bot token.
func (c *Client) FileURL(filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, strings.TrimLeft(filePath, "/"))
}

// ResolveAttachment turns a file id into a retrieval URL.
func (c *Client) ResolveAttachment(ctx context.Context, fileID string) (string, error) {
	file, err := c.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	return c.FileURL(file.FilePath), nil
}

// SetWebhook registers the relay's webhook endpoint.
func (c *Client) SetWebhook(ctx context.Context, cfg WebhookConfig) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return errors.New("telegram setWebhook: missing url")
	}
	var ok bool
	return c.postJSON(ctx, "setWebhook", cfg, &ok)
}

// GetWebhookInfo reports the current webhook registration.
func (c *Client) GetWebhookInfo(ctx context.Context) (WebhookInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.methodURL("getWebhookInfo"), nil)
	if err != nil {
		return WebhookInfo{}, err
	}
	var info WebhookInfo
	if err := c.do(req, "getWebhookInfo", &info); err != nil {
		return WebhookInfo{}, err
	}
	return info, nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func (c *Client) postJSON(ctx context.Context, method string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: encode request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, c.redact(err))
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()

	var envelope apiResponse
	_ = json.Unmarshal(raw, &envelope)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.OK {
		return &RequestError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			ErrorCode:   envelope.ErrorCode,
			Description: envelope.Description,
			Body:        strings.TrimSpace(string(raw)),
		}
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

// redact strips the bot token from transport errors, which otherwise quote
// the full request URL.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if c.token != "" && errors.As(err, &urlErr) {
		clone := *urlErr
		clone.URL = strings.ReplaceAll(clone.URL, c.token, "<redacted>")
		return &clone
	}
	return err
}

// RequestError is returned when the Bot API answers with a non-2xx status
// or ok=false.
type RequestError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "telegram request failed"
	}
	prefix := "telegram"
	if e.Method != "" {
		prefix += " " + e.Method
	}
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		desc = strings.TrimSpace(e.Body)
	}
	switch {
	case e.StatusCode > 0 && desc != "":
		return fmt.Sprintf("%s: http %d: %s", prefix, e.StatusCode, desc)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: http %d", prefix, e.StatusCode)
	case desc != "":
		return prefix + ": " + desc
	default:
		return prefix + ": request failed"
	}
}

// Retryable reports whether the failure is transient (rate limiting or a
// server-side error).
func (e *RequestError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
