package crawler

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"sjsage522/adwatcher/helpers"
	"sjsage522/adwatcher/logger"
	"sjsage522/adwatcher/pkg/errors"
	"sjsage522/adwatcher/services/cache"

	"golang.org/x/time/rate"
)

// PacedFetcher guards a page fetch function. Requests to one host are paced,
// and a host that answered "too many requests" is left alone for blockTime.
type PacedFetcher struct {
	cacheSvc  cache.CacheService
	blockTime time.Duration
	pageDelay time.Duration
	fetch     FetcherFunc

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPacedFetcher wraps fetch. cacheSvc may be nil.
func NewPacedFetcher(fetch FetcherFunc, cacheSvc cache.CacheService, blockTime, pageDelay time.Duration) *PacedFetcher {
	return &PacedFetcher{
		cacheSvc:  cacheSvc,
		blockTime: blockTime,
		pageDelay: pageDelay,
		fetch:     fetch,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// NewHTTPFetcher creates a paced fetcher over plain HTTP. cacheSvc may be nil.
func NewHTTPFetcher(cacheSvc cache.CacheService, blockTime, pageDelay time.Duration) *PacedFetcher {
	return NewPacedFetcher(helpers.FetchWithRandomHeaders, cacheSvc, blockTime, pageDelay)
}

// rateLimitKey is the cache key blocking host
func rateLimitKey(host string) string {
	return strings.ReplaceAll(host, ".", "_") + "_rate_limited"
}

// Fetch implements Fetcher
func (f *PacedFetcher) Fetch(ctx context.Context, url string) (io.Reader, error) {
	host := helpers.Host(url)
	key := rateLimitKey(host)

	// Check if the host is rate limited
	if f.cacheSvc != nil {
		if _, err := f.cacheSvc.Get(key); err == nil {
			return nil, errors.NewRateLimit(host, f.blockTime)
		}
	}

	if err := f.limiter(host).Wait(ctx); err != nil {
		return nil, err
	}

	utf8Body, err := f.fetch(ctx, url)
	if err != nil {
		if strings.HasPrefix(err.Error(), helpers.RateLimitedPrefix) {
			f.block(key, host)
			return nil, errors.New(errors.ErrorTypeRateLimit, host, err.Error(), nil)
		}
		if errors.TypeOf(err) != "" || ctx.Err() != nil {
			return nil, err
		}
		return nil, errors.NewNetwork(host, "fetch "+url, err)
	}

	return utf8Body, nil
}

func (f *PacedFetcher) block(key, host string) {
	if f.cacheSvc == nil || f.blockTime <= 0 {
		return
	}
	value := []byte(fmt.Sprintf("%d", f.blockTime/time.Second))
	if err := f.cacheSvc.Set(key, value, f.blockTime); err != nil {
		logger.LogError("fetcher", errors.NewCache(host, "store rate limit block", err), "failed to block %s", host)
		return
	}
	logger.Warn("%s rate limited, pausing requests for %v", host, f.blockTime)
}

func (f *PacedFetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		limit := rate.Inf
		if f.pageDelay > 0 {
			limit = rate.Every(f.pageDelay)
		}
		l = rate.NewLimiter(limit, 1)
		f.limiters[host] = l
	}
	return l
}
