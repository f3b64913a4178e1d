// Package service реализует бизнес-логику сервиса хранения коллекций.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/model"
	"github.com/mmeshcher/ludex-store/internal/validation"
	"github.com/mmeshcher/ludex-store/internal/view"
)

// ErrMalformedDocument возвращается, если тело запроса не является JSON-объектом нужной формы.
var ErrMalformedDocument = errors.New("malformed document")

// Service проверяет документы и передаёт их хранилищу.
type Service struct {
	store  gateway.Gateway
	logger *zap.Logger
	now    func() time.Time
}

// NewService создаёт сервис поверх хранилища store.
func NewService(store gateway.Gateway, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func checkCollection(c model.Collection) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", gateway.ErrUnknownCollection, c)
	}
	return nil
}

// checkDocument проверяет, что doc - JSON-объект, который проходит проверку сущности коллекции.
func checkDocument(c model.Collection, doc []byte) error {
	if !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject() {
		return fmt.Errorf("%w: expected a JSON object", ErrMalformedDocument)
	}
	if err := model.ValidateDocument(c, doc); err != nil {
		if errors.Is(err, validation.ErrInvalid) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return nil
}

// ListAll возвращает все документы коллекции.
func (s *Service) ListAll(ctx context.Context, c model.Collection) ([]json.RawMessage, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	return s.store.ListAll(ctx, c)
}

// Create проверяет документ и сохраняет его. Идентификатор из документа сохраняется,
// если это UUID; иначе генерируется новый. Возвращает идентификатор записи.
// Занятый идентификатор с другим содержимым даёт gateway.ErrConflict.
func (s *Service) Create(ctx context.Context, c model.Collection, doc []byte) (string, error) {
	if err := checkCollection(c); err != nil {
		return "", err
	}
	if err := checkDocument(c, doc); err != nil {
		return "", err
	}

	id := gjson.GetBytes(doc, "id").String()
	if id != "" {
		if _, err := uuid.FromString(id); err != nil {
			return "", &validation.Error{Fields: []validation.FieldError{{Field: "id", Message: "must be a UUID"}}}
		}
	} else {
		u, err := uuid.NewV4()
		if err != nil {
			return "", fmt.Errorf("generate id: %w", err)
		}
		id = u.String()

		fields := make(map[string]json.RawMessage)
		if err := json.Unmarshal(doc, &fields); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		fields["id"], _ = json.Marshal(id)
		if doc, err = json.Marshal(fields); err != nil {
			return "", fmt.Errorf("encode document: %w", err)
		}
	}

	if err := s.store.Insert(ctx, c, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Update проверяет документ и полностью заменяет им запись id.
func (s *Service) Update(ctx context.Context, c model.Collection, id string, doc []byte) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	if _, err := uuid.FromString(id); err != nil {
		return fmt.Errorf("%w: %s", gateway.ErrNotFound, id)
	}
	if err := checkDocument(c, doc); err != nil {
		return err
	}
	return s.store.Update(ctx, c, id, doc)
}

// Delete удаляет запись id.
func (s *Service) Delete(ctx context.Context, c model.Collection, id string) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	if _, err := uuid.FromString(id); err != nil {
		return fmt.Errorf("%w: %s", gateway.ErrNotFound, id)
	}
	return s.store.Delete(ctx, c, id)
}

// Subscribe подписывает fn на изменения коллекции.
func (s *Service) Subscribe(ctx context.Context, c model.Collection, fn func(gateway.Change)) (gateway.Subscription, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	return s.store.Subscribe(ctx, c, fn)
}

// Dashboard параллельно загружает все коллекции и считает сводную статистику.
func (s *Service) Dashboard(ctx context.Context) (view.Dashboard, error) {
	var snaps view.Snapshots

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snaps.Subscriptions, err = gateway.For[model.Subscription](s.store).ListAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		snaps.Transactions, err = gateway.For[model.Transaction](s.store).ListAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		snaps.Customers, err = gateway.For[model.Customer](s.store).ListAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		snaps.Products, err = gateway.For[model.Product](s.store).ListAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		snaps.Sales, err = gateway.For[model.SaleRecord](s.store).ListAll(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return view.Dashboard{}, err
	}
	return view.BuildDashboard(snaps, s.now()), nil
}
