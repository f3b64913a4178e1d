package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/model"
	"github.com/mmeshcher/ludex-store/internal/validation"
)

func newTestClient(url string) *Client {
	c := NewClient(url, "secret", zap.NewNop())
	c.http.RetryWaitMin = time.Millisecond
	c.http.RetryWaitMax = 5 * time.Millisecond
	c.reconnectMin = 5 * time.Millisecond
	c.reconnectMax = 20 * time.Millisecond
	return c
}

func TestListAll_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/products" {
			t.Fatalf("path = %s, want /api/products", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":"1","name":"Netflix"},{"id":"2","name":"Spotify"}]`)
	}))
	defer ts.Close()

	docs, err := newTestClient(ts.URL).ListAll(context.Background(), model.CollectionProducts)
	if err != nil {
		t.Fatalf("ListAll error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2", len(docs))
	}
	if name := gjson.GetBytes(docs[1], "name").String(); name != "Spotify" {
		t.Fatalf("name = %q, want Spotify", name)
	}
}

func TestListAll_SchemeAdded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer ts.Close()

	c := newTestClient(strings.TrimPrefix(ts.URL, "http://") + "/")
	docs, err := c.ListAll(context.Background(), model.CollectionSales)
	if err != nil {
		t.Fatalf("ListAll error: %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Fatalf("docs = %v, want empty slice", docs)
	}
}

func TestInsert_AssignsID(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/customers" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		n := len(bodies)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	err := newTestClient(ts.URL).Insert(context.Background(), model.CollectionCustomers, json.RawMessage(`{"name":"Ali"}`))
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if len(bodies) != 2 {
		t.Fatalf("requests = %d, want 2", len(bodies))
	}
	id := gjson.Get(bodies[0], "id").String()
	if id == "" {
		t.Fatalf("id not assigned: %s", bodies[0])
	}
	if gjson.Get(bodies[1], "id").String() != id {
		t.Fatalf("retried insert must reuse id %s, got %s", id, bodies[1])
	}
	if gjson.Get(bodies[0], "name").String() != "Ali" {
		t.Fatalf("fields not preserved: %s", bodies[0])
	}
}

func TestInsert_NotAnObject(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	if err := c.Insert(context.Background(), model.CollectionSales, json.RawMessage(`[1]`)); err == nil {
		t.Fatal("expected error for non-object document")
	}
}

func TestErrorsCarryServerMessage(t *testing.T) {
	tests := []struct {
		name   string
		status int
		target error
	}{
		{name: "not found", status: http.StatusNotFound, target: gateway.ErrNotFound},
		{name: "id taken", status: http.StatusConflict, target: gateway.ErrConflict},
		{name: "validation", status: http.StatusUnprocessableEntity, target: validation.ErrInvalid},
		{name: "server down", status: http.StatusServiceUnavailable, target: gateway.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom from server", tt.status)
			}))
			defer ts.Close()

			err := newTestClient(ts.URL).Update(context.Background(), model.CollectionProducts, "42", json.RawMessage(`{}`))
			if !errors.Is(err, tt.target) {
				t.Fatalf("err = %v, want %v", err, tt.target)
			}
			if !strings.Contains(err.Error(), "boom from server") {
				t.Fatalf("err = %q, want server message", err)
			}
		})
	}
}

func TestDelete_PathAndStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/sales/abc" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	if err := newTestClient(ts.URL).Delete(context.Background(), model.CollectionSales, "abc"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
}

func TestConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := newTestClient(url).ListAll(context.Background(), model.CollectionSales)
	if !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestReadEvents(t *testing.T) {
	stream := ": ping\n\n" +
		"event: change\ndata: {\"table\":\"sales\",\"op\":\"INSERT\",\"id\":\"1\"}\n\n" +
		"event: other\ndata: {\"op\":\"DELETE\"}\n\n" +
		"data: {\"table\":\"products\",\"op\":\"DELETE\",\"id\":\"2\"}\n\n" +
		"data: {\"op\":\"UPDATE\",\"id\":\"3\"}\n\n"

	var got []gateway.Change
	err := readEvents(strings.NewReader(stream), model.CollectionSales, func(ch gateway.Change) {
		got = append(got, ch)
	})
	if err == nil {
		t.Fatal("expected error when stream ends")
	}

	want := []gateway.Change{
		{Collection: model.CollectionSales, Op: gateway.OpInsert, ID: "1"},
		{Collection: model.CollectionSales, Op: gateway.OpUpdate, ID: "3"},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("changes = %v, want %v", got, want)
	}
}

func TestSubscribe_ReconnectsWithResync(t *testing.T) {
	var conns atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sales/changes" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)

		if conns.Add(1) == 1 {
			_, _ = io.WriteString(w, "event: change\ndata: {\"table\":\"sales\",\"op\":\"INSERT\",\"id\":\"1\"}\n\n")
			flusher.Flush()
			return
		}
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	changes := make(chan gateway.Change, 8)
	sub, err := newTestClient(ts.URL).Subscribe(context.Background(), model.CollectionSales, func(ch gateway.Change) {
		changes <- ch
	})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	for _, want := range []string{gateway.OpInsert, gateway.OpResync} {
		select {
		case ch := <-changes:
			if ch.Op != want {
				t.Fatalf("op = %s, want %s", ch.Op, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
}

func TestSubscribe_ReconnectsSilentStream(t *testing.T) {
	var conns atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conns.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, ": connected\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)
	c.idleTimeout = 50 * time.Millisecond

	changes := make(chan gateway.Change, 8)
	sub, err := c.Subscribe(context.Background(), model.CollectionSales, func(ch gateway.Change) {
		select {
		case changes <- ch:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer sub.Unsubscribe()

	select {
	case ch := <-changes:
		if ch.Op != gateway.OpResync {
			t.Fatalf("op = %s, want %s", ch.Op, gateway.OpResync)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("silent stream was not reconnected")
	}
	if n := conns.Load(); n < 2 {
		t.Fatalf("connections = %d, want at least 2", n)
	}
}

func TestIdleReader_KeepsActiveStream(t *testing.T) {
	pr, pw := io.Pipe()
	r := newIdleReader(pr, 100*time.Millisecond)
	defer r.Close()

	go func() {
		for i := 0; i < 5; i++ {
			time.Sleep(40 * time.Millisecond)
			_, _ = io.WriteString(pw, ": ping\n\n")
		}
		pw.Close()
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if got := strings.Count(string(data), "ping"); got != 5 {
		t.Fatalf("pings = %d, want 5", got)
	}
}

func TestSubscribe_SetupError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown collection", http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Subscribe(context.Background(), "users", func(gateway.Change) {})
	if !errors.Is(err, gateway.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
