// Package repository содержит реализацию хранилища коллекций в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NotifyChannel - канал LISTEN/NOTIFY, в который триггеры пишут изменения коллекций.
const NotifyChannel = "collection_changes"

// PgxPool - минимальный набор методов пула, используемый репозиторием.
// Ему удовлетворяют *pgxpool.Pool и pgxmock.PgxPoolIface.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresRepository хранит каждую коллекцию в отдельной таблице с JSONB-документами
// и реализует gateway.Gateway.
type PostgresRepository struct {
	pool    PgxPool
	connect func(ctx context.Context) (notifyConn, error)
	hub     *gateway.Hub
	log     *zap.Logger
	delays  []time.Duration
}

var _ gateway.Gateway = (*PostgresRepository)(nil)

// NewPostgresRepository создаёт репозиторий и применяет миграции схемы.
func NewPostgresRepository(dsn string, logger *zap.Logger) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	r := newRepository(pool, logger)
	r.connect = func(ctx context.Context) (notifyConn, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return poolConn{conn: conn}, nil
	}
	return r, nil
}

func newRepository(pool PgxPool, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{
		pool:   pool,
		hub:    gateway.NewHub(),
		log:    logger,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil || !retryable(err) || i == len(r.delays) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delays[i]):
		}
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgerrcode.IsConnectionException(pgErr.Code)
	}

	return pgconn.SafeToRetry(err) || isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// isInvalidID сообщает, что идентификатор не является UUID.
func isInvalidID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation
}

func table(c model.Collection) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", gateway.ErrUnknownCollection, c)
	}
	return pgx.Identifier{string(c)}.Sanitize(), nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// ListAll возвращает все документы коллекции с полем id.
func (r *PostgresRepository) ListAll(ctx context.Context, c model.Collection) ([]json.RawMessage, error) {
	t, err := table(c)
	if err != nil {
		return nil, err
	}

	var docs []json.RawMessage
	err = r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT doc || jsonb_build_object('id', id::text) FROM `+t+` ORDER BY created_at`)
		if err != nil {
			return fmt.Errorf("select %s: %w", c, err)
		}
		defer rows.Close()

		docs = docs[:0]
		for rows.Next() {
			var doc []byte
			if err := rows.Scan(&doc); err != nil {
				return fmt.Errorf("scan %s: %w", c, err)
			}
			docs = append(docs, doc)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if docs == nil {
		docs = []json.RawMessage{}
	}
	return docs, nil
}

// Insert сохраняет документ. Если в документе нет id, он генерируется.
// Повторная вставка того же документа с тем же id ничего не меняет,
// другой документ с занятым id отклоняется с gateway.ErrConflict.
func (r *PostgresRepository) Insert(ctx context.Context, c model.Collection, doc json.RawMessage) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(doc) {
		return errors.New("malformed document")
	}

	id := gjson.GetBytes(doc, "id").String()
	if id == "" {
		u, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("generate id: %w", err)
		}
		id = u.String()
	}

	return r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`INSERT INTO `+t+` (id, doc) VALUES ($1, $2::jsonb - 'id') ON CONFLICT (id) DO NOTHING`,
			id, string(doc),
		)
		if err != nil {
			if isInvalidID(err) {
				return fmt.Errorf("invalid id %q", id)
			}
			return fmt.Errorf("insert %s: %w", c, err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		// Запись с таким id уже есть: повтор той же вставки считается успехом.
		var same bool
		err = r.pool.QueryRow(ctx,
			`SELECT doc = $2::jsonb - 'id' FROM `+t+` WHERE id = $1`,
			id, string(doc),
		).Scan(&same)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("%w: %s was deleted concurrently", gateway.ErrConflict, id)
		case err != nil:
			return fmt.Errorf("compare %s: %w", c, err)
		case !same:
			return fmt.Errorf("%w: %s", gateway.ErrConflict, id)
		}
		return nil
	})
}

// Update полностью заменяет документ записи id.
func (r *PostgresRepository) Update(ctx context.Context, c model.Collection, id string, doc json.RawMessage) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(doc) {
		return errors.New("malformed document")
	}

	return r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE `+t+` SET doc = $2::jsonb - 'id', updated_at = now() WHERE id = $1`,
			id, string(doc),
		)
		if err != nil {
			if isInvalidID(err) {
				return fmt.Errorf("%w: %s", gateway.ErrNotFound, id)
			}
			return fmt.Errorf("update %s: %w", c, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", gateway.ErrNotFound, id)
		}
		return nil
	})
}

// Delete удаляет запись id.
func (r *PostgresRepository) Delete(ctx context.Context, c model.Collection, id string) error {
	t, err := table(c)
	if err != nil {
		return err
	}

	return r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM `+t+` WHERE id = $1`, id)
		if err != nil {
			if isInvalidID(err) {
				return fmt.Errorf("%w: %s", gateway.ErrNotFound, id)
			}
			return fmt.Errorf("delete %s: %w", c, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", gateway.ErrNotFound, id)
		}
		return nil
	})
}

// Subscribe подписывает onChange на уведомления, получаемые Listen.
func (r *PostgresRepository) Subscribe(_ context.Context, c model.Collection, onChange func(gateway.Change)) (gateway.Subscription, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %q", gateway.ErrUnknownCollection, c)
	}
	return r.hub.Subscribe(c, onChange), nil
}
