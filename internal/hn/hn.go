// Package hn is a client for the Hacker News item feed.
package hn

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aparm539/nwHacks2026/internal/database"
)

// DefaultBaseURL is the public Firebase endpoint of the feed.
const DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"

// Item is a feed record in wire format.
type Item struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	By          string  `json:"by"`
	Time        int64   `json:"time"`
	Text        string  `json:"text"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Score       int     `json:"score"`
	Descendants int     `json:"descendants"`
	Parent      int64   `json:"parent"`
	Deleted     bool    `json:"deleted"`
	Dead        bool    `json:"dead"`
	Kids        []int64 `json:"kids"`
}

// Valid reports whether the record carries the fields needed to store it.
func (it *Item) Valid() bool {
	return it != nil && it.Type != "" && it.Time > 0
}

// Record converts the wire item into its stored form.
func (it *Item) Record() database.Item {
	rec := database.Item{
		ID:          it.ID,
		Type:        it.Type,
		Time:        it.Time,
		Score:       it.Score,
		Descendants: it.Descendants,
		Deleted:     it.Deleted,
		Dead:        it.Dead,
		By:          optional(it.By),
		Title:       optional(it.Title),
		Text:        optional(it.Text),
		URL:         optional(it.URL),
	}
	if it.Parent != 0 {
		p := it.Parent
		rec.Parent = &p
	}
	return rec
}

// User is an author profile in wire format.
type User struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Karma   int    `json:"karma"`
	About   string `json:"about"`
}

// Record converts the wire user into its stored form.
func (u *User) Record() database.User {
	return database.User{ID: u.ID, Created: u.Created, Karma: u.Karma, About: optional(u.About)}
}

// Client fetches items, users and the high-water mark from the feed.
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 = unlimited
	UserAgent         string
}

// NewClient creates a feed client. Every request passes through one shared limiter.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// FetchMaxItem returns the current maximum assigned item ID.
func (c *Client) FetchMaxItem(ctx context.Context) (int64, error) {
	var max int64
	found, err := c.getJSON(ctx, "/maxitem.json", &max)
	if err != nil {
		return 0, fmt.Errorf("fetching max item: %w", err)
	}
	if !found {
		return 0, fmt.Errorf("fetching max item: empty response")
	}
	return max, nil
}

// FetchItem returns an item, or nil when it is missing, null or unreachable.
func (c *Client) FetchItem(ctx context.Context, id int64) *Item {
	var it Item
	found, err := c.getJSON(ctx, "/item/"+strconv.FormatInt(id, 10)+".json", &it)
	if err != nil {
		log.Printf("Item %d unavailable: %v", id, err)
		return nil
	}
	if !found {
		return nil
	}
	return &it
}

// FetchUser returns a user, or nil when it is missing or unreachable.
func (c *Client) FetchUser(ctx context.Context, id string) *User {
	var u User
	found, err := c.getJSON(ctx, "/user/"+id+".json", &u)
	if err != nil {
		log.Printf("User %s unavailable: %v", id, err)
		return nil
	}
	if !found || u.ID == "" {
		return nil
	}
	return &u
}

// FetchItems fetches ids in windows of at most concurrency requests.
// The result is aligned with ids; missing items are nil.
func (c *Client) FetchItems(ctx context.Context, ids []int64, concurrency int) []*Item {
	out := make([]*Item, len(ids))
	window(len(ids), concurrency, func(i int) {
		out[i] = c.FetchItem(ctx, ids[i])
	})
	return out
}

// FetchUsers fetches users in windows of at most concurrency requests.
// Users that could not be fetched are absent from the map.
func (c *Client) FetchUsers(ctx context.Context, ids []string, concurrency int) map[string]*User {
	got := make([]*User, len(ids))
	window(len(ids), concurrency, func(i int) {
		got[i] = c.FetchUser(ctx, ids[i])
	})

	out := make(map[string]*User, len(ids))
	for i, u := range got {
		if u != nil {
			out[ids[i]] = u
		}
	}
	return out
}

// window runs fn for 0..n-1 in consecutive batches of size, waiting for each
// batch to finish before starting the next.
func window(n, size int, fn func(i int)) {
	if size < 1 {
		size = 1
	}
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				fn(i)
			}(i)
		}
		wg.Wait()
	}
}

// getJSON decodes the response at path into v. found is false for 404 and JSON null.
func (c *Client) getJSON(ctx context.Context, path string, v any) (found bool, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	if string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	return true, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
