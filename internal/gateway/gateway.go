// Package gateway описывает доступ к удалённому хранилищу коллекций
// и уведомления об изменениях в них.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mmeshcher/ludex-store/internal/model"
)

var (
	// ErrNotFound возвращается, если запись с указанным идентификатором отсутствует.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownCollection возвращается для неизвестного имени коллекции.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrUnavailable возвращается, если хранилище недоступно.
	ErrUnavailable = errors.New("store unavailable")
	// ErrConflict возвращается при вставке с уже занятым id и другим содержимым.
	ErrConflict = errors.New("record with this id already exists")
)

// Операции изменения коллекции.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
	// OpResync сообщает о возможной потере уведомлений после переподключения.
	OpResync = "RESYNC"
)

// Change - уведомление об изменении коллекции.
type Change struct {
	Collection model.Collection `json:"table"`
	Op         string           `json:"op"`
	ID         string           `json:"id,omitempty"`
}

// Subscription - дескриптор подписки на изменения.
type Subscription interface {
	Unsubscribe()
}

// Gateway предоставляет операции над именованными коллекциями.
// Документы передаются в JSON; ListAll возвращает записи с полем id,
// порядок записей не определён.
type Gateway interface {
	ListAll(ctx context.Context, c model.Collection) ([]json.RawMessage, error)
	// Insert сохраняет документ. Если в документе нет id, он назначается хранилищем.
	Insert(ctx context.Context, c model.Collection, doc json.RawMessage) error
	// Update полностью заменяет документ записи.
	Update(ctx context.Context, c model.Collection, id string, doc json.RawMessage) error
	Delete(ctx context.Context, c model.Collection, id string) error
	// Subscribe вызывает onChange при любом изменении коллекции.
	Subscribe(ctx context.Context, c model.Collection, onChange func(Change)) (Subscription, error)
}

// Error описывает сбой операции шлюза и несёт читаемое сообщение.
type Error struct {
	Op         string
	Collection model.Collection
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap оборачивает err в *Error, если это ещё не сделано.
func Wrap(op string, c model.Collection, err error) error {
	if err == nil {
		return nil
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return err
	}
	return &Error{Op: op, Collection: c, Err: err}
}
