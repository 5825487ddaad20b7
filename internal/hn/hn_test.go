package hn

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
}

func TestFetchItem(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/item/1.json":
			fmt.Fprint(w, `{"id":1,"type":"story","by":"pg","time":1160418111,"title":"Y Combinator","score":57,"kids":[15]}`)
		case "/item/2.json":
			fmt.Fprint(w, `null`)
		case "/item/3.json":
			w.WriteHeader(http.StatusInternalServerError)
		case "/item/4.json":
			fmt.Fprint(w, `{"id":4,`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	it := c.FetchItem(ctx, 1)
	if it == nil {
		t.Fatal("expected item 1")
	}
	if it.Title != "Y Combinator" || it.By != "pg" || it.Time != 1160418111 {
		t.Errorf("unexpected item %+v", it)
	}

	for _, id := range []int64{2, 3, 4, 5} {
		if got := c.FetchItem(ctx, id); got != nil {
			t.Errorf("expected nil for item %d, got %+v", id, got)
		}
	}
}

func TestFetchMaxItem(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maxitem.json" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "41234567")
	})
	max, err := c.FetchMaxItem(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if max != 41234567 {
		t.Errorf("expected 41234567, got %d", max)
	}
}

func TestFetchMaxItemError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if _, err := c.FetchMaxItem(context.Background()); err == nil {
		t.Error("expected error when feed is unavailable")
	}
}

func TestFetchItemsPreservesOrderAndWindow(t *testing.T) {
	var inflight, peak int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inflight, 1)
		defer atomic.AddInt32(&inflight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)

		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/item/"), ".json")
		if id == "7" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"id":%s,"type":"comment","time":1700000000}`, id)
	})

	ids := make([]int64, 0, 23)
	for id := int64(23); id >= 1; id-- {
		ids = append(ids, id)
	}
	got := c.FetchItems(context.Background(), ids, 4)

	if len(got) != len(ids) {
		t.Fatalf("expected %d results, got %d", len(ids), len(got))
	}
	for i, id := range ids {
		if id == 7 {
			if got[i] != nil {
				t.Errorf("expected nil for missing item 7")
			}
			continue
		}
		if got[i] == nil || got[i].ID != id {
			t.Errorf("position %d: expected item %d, got %+v", i, id, got[i])
		}
	}
	if p := atomic.LoadInt32(&peak); p > 4 {
		t.Errorf("expected at most 4 requests in flight, saw %d", p)
	}
}

func TestFetchUsers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/pg.json":
			fmt.Fprint(w, `{"id":"pg","created":1160418092,"karma":157236,"about":"Bug fixer."}`)
		default:
			fmt.Fprint(w, `null`)
		}
	})
	users := c.FetchUsers(context.Background(), []string{"pg", "ghost"}, 2)
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	rec := users["pg"].Record()
	if rec.Karma != 157236 || rec.About == nil || *rec.About != "Bug fixer." {
		t.Errorf("unexpected user record %+v", rec)
	}
}

func TestItemRecord(t *testing.T) {
	it := &Item{ID: 9, Type: "comment", Time: 5, Text: "hi", Parent: 8}
	rec := it.Record()
	if rec.By != nil || rec.Title != nil || rec.URL != nil {
		t.Errorf("expected empty strings to become nil, got %+v", rec)
	}
	if rec.Parent == nil || *rec.Parent != 8 || *rec.Text != "hi" {
		t.Errorf("unexpected record %+v", rec)
	}

	if (&Item{ID: 1, Time: 5}).Valid() {
		t.Error("expected item without type to be invalid")
	}
	if (&Item{ID: 1, Type: "story"}).Valid() {
		t.Error("expected item without time to be invalid")
	}
	var missing *Item
	if missing.Valid() {
		t.Error("expected nil item to be invalid")
	}
}

func TestWindowBoundsConcurrency(t *testing.T) {
	var mu sync.Mutex
	active, peak, calls := 0, 0, 0
	window(10, 3, func(i int) {
		mu.Lock()
		active++
		calls++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	})
	if calls != 10 {
		t.Errorf("expected 10 calls, got %d", calls)
	}
	if peak > 3 {
		t.Errorf("expected at most 3 concurrent calls, got %d", peak)
	}
}
