// Package remote предоставляет HTTP-клиент сервиса хранения коллекций.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/model"
	"github.com/mmeshcher/ludex-store/internal/validation"
)

// Client реализует gateway.Gateway поверх REST API сервиса хранения.
type Client struct {
	baseURL string
	key     string
	http    *retryablehttp.Client
	stream  *http.Client
	log     *zap.Logger

	reconnectMin time.Duration
	reconnectMax time.Duration
	// idleTimeout - сколько поток изменений может молчать до переподключения.
	// Сервис шлёт ping каждые 15 секунд.
	idleTimeout time.Duration
}

var _ gateway.Gateway = (*Client)(nil)

// NewClient создаёт клиент сервиса по адресу baseURL с ключом доступа key.
func NewClient(baseURL, key string, logger *zap.Logger) *Client {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = leveledLogger{logger.Sugar()}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:      base,
		key:          key,
		http:         rc,
		stream:       cleanhttp.DefaultPooledClient(),
		log:          logger,
		reconnectMin: 500 * time.Millisecond,
		reconnectMax: 30 * time.Second,
		idleTimeout:  45 * time.Second,
	}
}

func (c *Client) collectionURL(col model.Collection, parts ...string) string {
	u := c.baseURL + "/api/" + url.PathEscape(string(col))
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, want int) ([]byte, error) {
	var rawBody any
	if body != nil {
		rawBody = body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, rawBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != want {
		return nil, statusError(resp.StatusCode, data)
	}
	return data, nil
}

// statusError переводит ответ сервиса в ошибку с его текстом.
func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(code)
	}

	switch {
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", gateway.ErrNotFound, msg)
	case code == http.StatusConflict:
		return fmt.Errorf("%w: %s", gateway.ErrConflict, msg)
	case code == http.StatusUnprocessableEntity || code == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", validation.ErrInvalid, msg)
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", gateway.ErrUnavailable, msg)
	default:
		return fmt.Errorf("unexpected status %d: %s", code, msg)
	}
}

// ListAll загружает все записи коллекции.
func (c *Client) ListAll(ctx context.Context, col model.Collection) ([]json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodGet, c.collectionURL(col), nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var docs []json.RawMessage
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if docs == nil {
		docs = []json.RawMessage{}
	}
	return docs, nil
}

// Insert сохраняет документ. Идентификатор генерируется на клиенте,
// поэтому повтор запроса не создаёт дубликат.
func (c *Client) Insert(ctx context.Context, col model.Collection, doc json.RawMessage) error {
	doc, err := ensureID(doc)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, c.collectionURL(col), doc, http.StatusCreated)
	return err
}

// Update полностью заменяет документ записи id.
func (c *Client) Update(ctx context.Context, col model.Collection, id string, doc json.RawMessage) error {
	_, err := c.do(ctx, http.MethodPut, c.collectionURL(col, id), doc, http.StatusOK)
	return err
}

// Delete удаляет запись id.
func (c *Client) Delete(ctx context.Context, col model.Collection, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.collectionURL(col, id), nil, http.StatusNoContent)
	return err
}

func ensureID(doc json.RawMessage) (json.RawMessage, error) {
	if !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject() {
		return nil, errors.New("document must be a JSON object")
	}
	if gjson.GetBytes(doc, "id").String() != "" {
		return doc, nil
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	fields["id"], _ = json.Marshal(id.String())
	return json.Marshal(fields)
}

// leveledLogger передаёт журнал retryablehttp в zap.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }

var _ retryablehttp.LeveledLogger = leveledLogger{}
