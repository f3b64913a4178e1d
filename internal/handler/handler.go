// Package handler содержит HTTP-обработчики API сервиса хранения коллекций.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/middleware"
	"github.com/mmeshcher/ludex-store/internal/model"
	"github.com/mmeshcher/ludex-store/internal/service"
	"github.com/mmeshcher/ludex-store/internal/validation"
	"github.com/mmeshcher/ludex-store/internal/view"
)

const maxDocumentSize = 1 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	ListAll(ctx context.Context, c model.Collection) ([]json.RawMessage, error)
	Create(ctx context.Context, c model.Collection, doc []byte) (string, error)
	Update(ctx context.Context, c model.Collection, id string, doc []byte) error
	Delete(ctx context.Context, c model.Collection, id string) error
	Subscribe(ctx context.Context, c model.Collection, fn func(gateway.Change)) (gateway.Subscription, error)
	Dashboard(ctx context.Context) (view.Dashboard, error)
}

// Handler реализует HTTP-обработчики API сервиса хранения.
type Handler struct {
	service      Service
	logger       *zap.Logger
	accessKey    *middleware.AccessKeyMiddleware
	pingInterval time.Duration
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, accessKey *middleware.AccessKeyMiddleware) *Handler {
	return &Handler{
		service:      s,
		logger:       logger,
		accessKey:    accessKey,
		pingInterval: 15 * time.Second,
	}
}

func collectionParam(r *http.Request) model.Collection {
	return model.Collection(chi.URLParam(r, "collection"))
}

// writeError переводит ошибку сервиса в код ответа. Текст ошибки уходит клиенту.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	switch {
	case errors.Is(err, gateway.ErrUnknownCollection), errors.Is(err, gateway.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, gateway.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrMalformedDocument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, validation.ErrInvalid):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readDocument(r *http.Request) ([]byte, error) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrMalformedDocument, err)
	}
	if len(body) > maxDocumentSize {
		return nil, fmt.Errorf("%w: document too large", service.ErrMalformedDocument)
	}
	return body, nil
}

// List возвращает все записи коллекции.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	c := collectionParam(r)

	docs, err := h.service.ListAll(r.Context(), c)
	if err != nil {
		h.writeError(w, err, "list collection error", zap.String("collection", string(c)))
		return
	}

	writeJSON(w, http.StatusOK, docs)
}

type createResponse struct {
	ID string `json:"id"`
}

// Create сохраняет новую запись коллекции.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	c := collectionParam(r)

	doc, err := readDocument(r)
	if err != nil {
		h.writeError(w, err, "read document error")
		return
	}

	id, err := h.service.Create(r.Context(), c, doc)
	if err != nil {
		h.writeError(w, err, "create record error", zap.String("collection", string(c)))
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{ID: id})
}

// Update полностью заменяет запись коллекции.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	c := collectionParam(r)
	id := chi.URLParam(r, "id")

	doc, err := readDocument(r)
	if err != nil {
		h.writeError(w, err, "read document error")
		return
	}

	if err := h.service.Update(r.Context(), c, id, doc); err != nil {
		h.writeError(w, err, "update record error", zap.String("collection", string(c)), zap.String("id", id))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Delete удаляет запись коллекции.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	c := collectionParam(r)
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), c, id); err != nil {
		h.writeError(w, err, "delete record error", zap.String("collection", string(c)), zap.String("id", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Dashboard возвращает сводную статистику всех коллекций.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.writeError(w, err, "dashboard error")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// Changes отдаёт поток server-sent events с изменениями коллекции.
// Если клиент не успевает читать, вместо потерянных событий отправляется RESYNC.
func (h *Handler) Changes(w http.ResponseWriter, r *http.Request) {
	c := collectionParam(r)
	rc := http.NewResponseController(w)

	changes := make(chan gateway.Change, 64)
	var lost atomic.Bool

	sub, err := h.service.Subscribe(r.Context(), c, func(ch gateway.Change) {
		select {
		case changes <- ch:
		default:
			lost.Store(true)
		}
	})
	if err != nil {
		h.writeError(w, err, "subscribe error", zap.String("collection", string(c)))
		return
	}
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Error("streaming is not supported", zap.Error(err))
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case ch := <-changes:
			err = writeEvent(w, ch)
		case <-ticker.C:
			_, err = io.WriteString(w, ": ping\n\n")
		}
		if err == nil && lost.Swap(false) {
			err = writeEvent(w, gateway.Change{Collection: c, Op: gateway.OpResync})
		}
		if err == nil {
			err = rc.Flush()
		}
		if err != nil {
			h.logger.Debug("change stream closed", zap.String("collection", string(c)), zap.Error(err))
			return
		}
	}
}

func writeEvent(w io.Writer, ch gateway.Change) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: change\ndata: %s\n\n", data)
	return err
}
