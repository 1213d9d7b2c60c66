package fetcher

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/dgraph-io/badger/v4"

	"github.com/IshaanNene/igscrape/internal/types"
)

// cachedPage is the gob-encoded value stored per URL.
type cachedPage struct {
	StatusCode  int
	ContentType string
	FinalURL    string
	Body        []byte
	FetchedAt   time.Time
}

// Cache is an on-disk page cache keyed by normalized URL. Entries expire
// through badger's TTL.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenCache opens (or creates) a page cache in dir. An empty dir opens an
// in-memory cache.
func OpenCache(dir string, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open page cache %s: %w", dir, err)
	}
	return &Cache{
		db:     db,
		ttl:    ttl,
		logger: logger.With("component", "page_cache"),
	}, nil
}

// Key normalizes a URL for use as a cache key.
func (c *Cache) Key(u *url.URL) string {
	return purell.NormalizeURL(u,
		purell.FlagsSafe|
			purell.FlagsUsuallySafeNonGreedy|
			purell.FlagRemoveFragment|
			purell.FlagSortQuery,
	)
}

// Get returns the cached response for req, or false on a miss.
func (c *Cache) Get(req *types.Request) (*types.Response, bool) {
	if !req.Cacheable() {
		return nil, false
	}
	key := c.Key(req.URL)

	var page cachedPage
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&page)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return nil, false
	}

	return &types.Response{
		StatusCode:  page.StatusCode,
		Headers:     http.Header{"Content-Type": []string{page.ContentType}},
		Body:        page.Body,
		Request:     req,
		ContentType: page.ContentType,
		FinalURL:    page.FinalURL,
		FromCache:   true,
		FetchedAt:   page.FetchedAt,
	}, true
}

// Put stores a successful HTML response. Other responses are ignored.
func (c *Cache) Put(resp *types.Response) error {
	if resp.Request == nil || !resp.Request.Cacheable() || !resp.IsSuccess() {
		return nil
	}
	if ct := strings.ToLower(resp.ContentType); ct != "" && !strings.Contains(ct, "html") {
		return nil
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(cachedPage{
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		FinalURL:    resp.FinalURL,
		Body:        resp.Body,
		FetchedAt:   resp.FetchedAt,
	})
	if err != nil {
		return fmt.Errorf("encode cached page: %w", err)
	}

	key := c.Key(resp.Request.URL)
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), buf.Bytes()).WithTTL(c.ttl))
	})
}

// Purge removes every cached page.
func (c *Cache) Purge() error {
	return c.db.DropAll()
}

// Close flushes and closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
