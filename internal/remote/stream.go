package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/model"
)

// Subscribe открывает поток изменений коллекции. Ошибка установки соединения
// возвращается сразу. При обрыве клиент переподключается и сообщает OpResync.
func (c *Client) Subscribe(ctx context.Context, col model.Collection, onChange func(gateway.Change)) (gateway.Subscription, error) {
	sctx, cancel := context.WithCancel(ctx)

	body, err := c.openStream(sctx, col)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &streamSubscription{cancel: cancel, done: make(chan struct{})}
	go c.follow(sctx, col, body, onChange, sub.done)
	return sub, nil
}

func (c *Client) openStream(ctx context.Context, col model.Collection) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.collectionURL(col, "changes"), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.StatusCode, data)
	}
	return resp.Body, nil
}

func (c *Client) follow(ctx context.Context, col model.Collection, body io.ReadCloser, onChange func(gateway.Change), done chan<- struct{}) {
	defer close(done)
	log := c.log.With(zap.String("collection", string(col)))

	for {
		stream := newIdleReader(body, c.idleTimeout)
		err := readEvents(stream, col, onChange)
		stream.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warn("change stream interrupted, reconnecting", zap.Error(err))

		backoff := retry.WithCappedDuration(c.reconnectMax, retry.NewExponential(c.reconnectMin))
		err = retry.Do(ctx, backoff, func(ctx context.Context) error {
			b, err := c.openStream(ctx, col)
			if err != nil {
				if ctx.Err() == nil {
					log.Debug("change stream reconnect failed", zap.Error(err))
				}
				return retry.RetryableError(err)
			}
			body = b
			return nil
		})
		if err != nil {
			return
		}

		log.Info("change stream reconnected")
		onChange(gateway.Change{Collection: col, Op: gateway.OpResync})
	}
}

// readEvents разбирает поток server-sent events до его закрытия.
func readEvents(r io.Reader, col model.Collection, onChange func(gateway.Change)) error {
	scanner := bufio.NewScanner(r)

	var (
		event string
		data  strings.Builder
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 && (event == "" || event == "change") {
				dispatchEvent(data.String(), col, onChange)
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("stream closed by server")
}

func dispatchEvent(payload string, col model.Collection, onChange func(gateway.Change)) {
	if !gjson.Valid(payload) {
		return
	}
	ch := gateway.Change{
		Collection: col,
		Op:         gjson.Get(payload, "op").String(),
		ID:         gjson.Get(payload, "id").String(),
	}
	if t := gjson.Get(payload, "table").String(); t != "" && model.Collection(t) != col {
		return
	}
	onChange(ch)
}

var errStreamIdle = errors.New("change stream is silent")

// idleReader закрывает поток, если из него долго не приходит ни байта.
// Так полуоткрытое соединение обрывается и клиент переподключается.
type idleReader struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleReader(body io.ReadCloser, timeout time.Duration) *idleReader {
	r := &idleReader{body: body, timeout: timeout}
	r.timer = time.AfterFunc(timeout, func() {
		r.expired.Store(true)
		_ = body.Close()
	})
	return r
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 && !r.expired.Load() {
		r.timer.Reset(r.timeout)
	}
	if err != nil && r.expired.Load() {
		return n, fmt.Errorf("%w for %s", errStreamIdle, r.timeout)
	}
	return n, err
}

func (r *idleReader) Close() error {
	r.timer.Stop()
	return r.body.Close()
}

type streamSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Unsubscribe закрывает поток и дожидается завершения чтения.
func (s *streamSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}
