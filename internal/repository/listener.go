package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/model"
)

// notifyConn - выделенное соединение для LISTEN.
type notifyConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Release()
}

type poolConn struct {
	conn *pgxpool.Conn
}

func (c poolConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.conn.Exec(ctx, sql, args...)
}

func (c poolConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return c.conn.Conn().WaitForNotification(ctx)
}

func (c poolConn) Release() { c.conn.Release() }

// Listen получает уведомления триггеров и рассылает их подписчикам до отмены ctx.
// После переподключения подписчики получают OpResync, так как часть уведомлений могла быть потеряна.
func (r *PostgresRepository) Listen(ctx context.Context) error {
	connected := false
	backoff := newListenBackoff()

	for {
		err := r.listenOnce(ctx, func() {
			if connected {
				r.hub.PublishResync()
			}
			connected = true
			backoff = newListenBackoff()
		})
		if ctx.Err() != nil {
			return nil
		}

		delay, _ := backoff.Next()
		r.log.Warn("notification listener disconnected",
			zap.Error(err),
			zap.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func newListenBackoff() retry.Backoff {
	return retry.WithCappedDuration(30*time.Second, retry.NewExponential(500*time.Millisecond))
}

func (r *PostgresRepository) listenOnce(ctx context.Context, onConnected func()) error {
	conn, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return err
	}
	onConnected()
	r.log.Info("listening for collection changes", zap.String("channel", NotifyChannel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		r.dispatch(n.Payload)
	}
}

func (r *PostgresRepository) dispatch(payload string) {
	if !gjson.Valid(payload) {
		r.log.Warn("malformed change notification", zap.String("payload", payload))
		return
	}

	fields := gjson.GetMany(payload, "table", "op", "id")
	c := model.Collection(fields[0].String())
	if !c.Valid() {
		r.log.Warn("change notification for unknown collection", zap.String("table", string(c)))
		return
	}

	r.hub.Publish(gateway.Change{
		Collection: c,
		Op:         fields[1].String(),
		ID:         fields[2].String(),
	})
}
