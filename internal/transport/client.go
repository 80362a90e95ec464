package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pe2pia/chatsync/internal/store"
	"go.uber.org/zap"
)

// SendRequest is the payload of one send attempt.
type SendRequest struct {
	ConversationID string
	SenderID       string
	Text           string
	Attachments    []store.Attachment
}

// Client is the transport consumed by the send pipeline and the sync layer.
// Implementations are network-bound and may fail or time out; callers
// contain those failures at their own boundary.
type Client interface {
	SendMessage(ctx context.Context, req SendRequest) (*ServerMessage, error)
	FetchMessages(ctx context.Context, conversationID string) ([]ServerMessage, error)
	FetchConversations(ctx context.Context, userID string) ([]ServerConversation, error)
	FetchUser(ctx context.Context, userID string) (*ServerUser, error)
}

// HTTPClient talks to the pe2pia REST API.
type HTTPClient struct {
	baseURL   string
	authToken string
	httpc     *http.Client
	logger    *zap.Logger
}

// NewHTTPClient creates a client for the given API base URL. The timeout
// bounds every request end to end.
func NewHTTPClient(baseURL, authToken string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		httpc:     &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// envelope is the `{"data": ...}` wrapper the API puts around every payload.
type envelope[T any] struct {
	Data T `json:"data"`
}

// SendMessage submits a message. Text-only payloads go as compact JSON;
// payloads with attachments go as multipart with the attachments as binary
// parts. Returns the server-assigned record.
func (c *HTTPClient) SendMessage(ctx context.Context, req SendRequest) (*ServerMessage, error) {
	var body io.Reader
	contentType := "application/json"

	if len(req.Attachments) == 0 {
		raw, err := json.Marshal(map[string]string{
			"conversationId": req.ConversationID,
			"senderId":       req.SenderID,
			"text":           req.Text,
		})
		if err != nil {
			return nil, fmt.Errorf("encode send body: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		buf := &bytes.Buffer{}
		if err := writeMultipart(buf, req, &contentType); err != nil {
			return nil, err
		}
		body = buf
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)

	var env envelope[ServerMessage]
	if err := c.do(httpReq, &env); err != nil {
		return nil, err
	}
	if err := env.Data.Validate(); err != nil {
		return nil, fmt.Errorf("send response: %w", err)
	}
	return &env.Data, nil
}

// FetchMessages returns the full authoritative message list for a
// conversation. Malformed records are quarantined: logged and skipped,
// never returned.
func (c *HTTPClient) FetchMessages(ctx context.Context, conversationID string) ([]ServerMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/messages/"+conversationID, nil)
	if err != nil {
		return nil, err
	}

	var env envelope[[]ServerMessage]
	if err := c.do(httpReq, &env); err != nil {
		return nil, err
	}

	out := env.Data[:0]
	for _, m := range env.Data {
		if err := m.Validate(); err != nil {
			c.logger.Warn("quarantined message record",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// FetchConversations returns the conversation snapshots for a user, with
// malformed entries quarantined.
func (c *HTTPClient) FetchConversations(ctx context.Context, userID string) ([]ServerConversation, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/conversation/"+userID, nil)
	if err != nil {
		return nil, err
	}

	var env envelope[[]ServerConversation]
	if err := c.do(httpReq, &env); err != nil {
		return nil, err
	}

	out := env.Data[:0]
	for _, conv := range env.Data {
		if err := conv.Validate(); err != nil {
			c.logger.Warn("quarantined conversation record",
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		out = append(out, conv)
	}
	return out, nil
}

// FetchUser resolves a member id to a profile.
func (c *HTTPClient) FetchUser(ctx context.Context, userID string) (*ServerUser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user/"+userID, nil)
	if err != nil {
		return nil, err
	}

	var env envelope[struct {
		User ServerUser `json:"user"`
	}]
	if err := c.do(httpReq, &env); err != nil {
		return nil, err
	}
	if env.Data.User.ID == "" {
		return nil, fmt.Errorf("user record for %q missing _id", userID)
	}
	return &env.Data.User, nil
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// writeMultipart encodes the request as a multipart body with the text
// fields plus one binary part per attachment. Image attachments use the
// "image" field, everything else "files".
func writeMultipart(buf *bytes.Buffer, req SendRequest, contentType *string) error {
	w := multipart.NewWriter(buf)
	*contentType = w.FormDataContentType()

	fields := map[string]string{
		"conversationId": req.ConversationID,
		"senderId":       req.SenderID,
		"text":           req.Text,
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return fmt.Errorf("write field %s: %w", name, err)
		}
	}

	for _, att := range req.Attachments {
		field := "files"
		if strings.HasPrefix(att.MimeType, "image/") {
			field = "image"
		}
		path := strings.TrimPrefix(att.URI, "file://")

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filepath.Base(path)))
		h.Set("Content-Type", att.MimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return fmt.Errorf("create part: %w", err)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open attachment: %w", err)
		}
		_, err = io.Copy(part, f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("copy attachment %s: %w", path, err)
		}
	}

	return w.Close()
}
