package proxy

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"resty.dev/v3"
)

const (
	probeTimeout     = 5 * time.Second
	maxParallelProbe = 50
)

// Supplier hands out catalog proxies in round-robin order.
type Supplier interface {
	// Get returns "" when no proxy is configured or none survived validation.
	Get() string
	Len() int
}

type supplier struct {
	mu      sync.Mutex
	proxies []string
	next    int
}

// NewSupplier probes every proxy against probeURL in parallel and keeps the
// ones that answer without an HTTP error. Configured order is preserved.
func NewSupplier(ctx context.Context, proxies []string, probeURL string) Supplier {
	if len(proxies) == 0 {
		return &supplier{}
	}

	log.Infof("🔄 Probing %d catalog proxies...", len(proxies))

	ok := make([]bool, len(proxies))
	g := new(errgroup.Group)
	g.SetLimit(maxParallelProbe)
	for i, proxyURL := range proxies {
		g.Go(func() error {
			ok[i] = probe(ctx, proxyURL, probeURL)
			return nil
		})
	}
	_ = g.Wait()

	working := make([]string, 0, len(proxies))
	for i, proxyURL := range proxies {
		if ok[i] {
			working = append(working, proxyURL)
		}
	}

	log.Infof("✅ %d of %d catalog proxies usable", len(working), len(proxies))
	return &supplier{proxies: working}
}

func (s *supplier) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.proxies) == 0 {
		return ""
	}

	p := s.proxies[s.next]
	s.next = (s.next + 1) % len(s.proxies)
	return p
}

func (s *supplier) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.proxies)
}

func probe(ctx context.Context, proxyURL, probeURL string) bool {
	client := resty.New().
		SetTimeout(probeTimeout).
		SetRetryCount(0).
		SetProxy(proxyURL)
	defer client.Close()

	resp, err := client.R().
		SetContext(ctx).
		Get(probeURL)
	if err != nil {
		log.Infof("❌ Proxy %s failed: %v", proxyURL, err)
		return false
	}
	if resp.IsError() {
		log.Infof("❌ Proxy %s answered %s", proxyURL, resp.Status())
		return false
	}

	log.Debugf("✅ Proxy %s is working", proxyURL)
	return true
}
