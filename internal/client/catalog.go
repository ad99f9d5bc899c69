package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"dealfeed/internal/config"
	"dealfeed/internal/domain"
	"dealfeed/internal/proxy"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

// CatalogSource opens paginated product streams. An empty search query is
// the same as asking for the popular stream.
type CatalogSource interface {
	Search(ctx context.Context, query string) (Stream, error)
	Popular(ctx context.Context) (Stream, error)
}

// PageFetcher loads one page of a catalog listing. Pages start at 1.
type PageFetcher interface {
	GetPage(ctx context.Context, query string, page int) (*Page, error)
}

// CatalogClient is the HTTP CatalogSource. It throttles requests and backs
// off for a while when the catalog answers 429.
type CatalogClient struct {
	rl            ratelimit.Limiter
	config        config.CatalogConfig
	httpClient    *resty.Client
	parser        *catalogParser
	proxySupplier proxy.Supplier

	// Circuit breaker for upstream throttling
	circuitBreakerMutex sync.RWMutex
	throttledUntil      time.Time
	circuitBreakerDelay time.Duration
}

// NewCatalogClient builds the HTTP catalog source. proxySupplier may be nil.
func NewCatalogClient(cfg config.CatalogConfig, proxySupplier proxy.Supplier) *CatalogClient {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.Timeout)*time.Second).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(2*time.Second).
		SetRetryMaxWaitTime(10*time.Second).
		SetHeader("User-Agent", "dealfeed/1.0")

	if cfg.Format == "html" {
		httpClient.SetHeader("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	} else {
		httpClient.SetHeader("Accept", "application/json")
	}

	if proxySupplier != nil {
		if proxyURL := proxySupplier.Get(); proxyURL != "" {
			httpClient.SetProxy(proxyURL)
			log.Infof("🔗 Using catalog proxy: %s", proxyURL)
		}
	}

	rl := ratelimit.NewUnlimited()
	if cfg.MaxRequestsPerSecond > 0 {
		rl = ratelimit.New(cfg.MaxRequestsPerSecond)
	}

	delay := time.Duration(cfg.CircuitBreakerMins) * time.Minute
	if delay <= 0 {
		delay = 30 * time.Minute
	}

	return &CatalogClient{
		rl:                  rl,
		config:              cfg,
		httpClient:          httpClient,
		parser:              newCatalogParser(cfg.BaseURL, cfg.Format),
		proxySupplier:       proxySupplier,
		circuitBreakerDelay: delay,
	}
}

func (c *CatalogClient) Search(ctx context.Context, query string) (Stream, error) {
	if query == "" {
		return c.Popular(ctx)
	}
	return OpenStream(ctx, c, query)
}

func (c *CatalogClient) Popular(ctx context.Context) (Stream, error) {
	return OpenStream(ctx, c, "")
}

// Close releases idle connections.
func (c *CatalogClient) Close() error {
	return c.httpClient.Close()
}

func (c *CatalogClient) GetPage(ctx context.Context, query string, page int) (*Page, error) {
	path := c.config.PopularPath
	params := map[string]string{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(c.config.PageSize),
	}
	if query != "" {
		path = c.config.SearchPath
		params["query"] = query
	}

	body, err := c.fetch(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog page %d: %w", page, err)
	}

	result, err := c.parser.ParsePage(body, page)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog page %d: %w", page, err)
	}

	log.Debugf("Fetched catalog page %d with %d products (more: %t)", result.Number, len(result.Products), result.HasNext)
	return result, nil
}

func (c *CatalogClient) isCircuitBreakerOpen() bool {
	c.circuitBreakerMutex.RLock()
	now := time.Now()
	open := now.Before(c.throttledUntil)
	tripped := !c.throttledUntil.IsZero()
	c.circuitBreakerMutex.RUnlock()

	if !open && tripped {
		c.circuitBreakerMutex.Lock()
		if !c.throttledUntil.IsZero() && now.After(c.throttledUntil) {
			c.throttledUntil = time.Time{}
			log.Infof("✅ Catalog circuit breaker closed, requests allowed again")
		}
		c.circuitBreakerMutex.Unlock()
	}

	return open
}

func (c *CatalogClient) triggerCircuitBreaker() {
	c.circuitBreakerMutex.Lock()
	defer c.circuitBreakerMutex.Unlock()

	c.throttledUntil = time.Now().Add(c.circuitBreakerDelay)
	log.Warnf("🚫 Catalog throttled us, pausing requests until %v", c.throttledUntil.Format("15:04:05"))
}

func (c *CatalogClient) remainingCircuitBreakerTime() time.Duration {
	c.circuitBreakerMutex.RLock()
	defer c.circuitBreakerMutex.RUnlock()

	return max(time.Until(c.throttledUntil), 0)
}

func (c *CatalogClient) fetch(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	if c.isCircuitBreakerOpen() {
		remaining := c.remainingCircuitBreakerTime().Round(time.Second)
		return nil, fmt.Errorf("%w for %v more", domain.ErrCircuitOpen, remaining)
	}

	c.rl.Take()

	resp, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		log.Warnf("🚫 Catalog returned 429 for %s", path)

		if c.proxySupplier != nil && c.proxySupplier.Len() > 1 {
			if next := c.proxySupplier.Get(); next != "" {
				log.Infof("🔄 Switching catalog proxy to %s", next)
				c.httpClient.SetProxy(next)

				resp, err = c.get(ctx, path, params)
				if err == nil && resp.StatusCode() != http.StatusTooManyRequests && !resp.IsError() {
					return []byte(resp.String()), nil
				}
			}
		}

		c.triggerCircuitBreaker()
		return nil, fmt.Errorf("%w: catalog rate limit exceeded", domain.ErrCircuitOpen)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status())
	}

	return []byte(resp.String()), nil
}

func (c *CatalogClient) get(ctx context.Context, path string, params map[string]string) (*resty.Response, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	return resp, nil
}

// IsThrottled reports whether err came from the catalog circuit breaker.
func IsThrottled(err error) bool {
	return errors.Is(err, domain.ErrCircuitOpen)
}
