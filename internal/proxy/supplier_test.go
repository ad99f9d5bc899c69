package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSupplier_NoProxies(t *testing.T) {
	s := NewSupplier(context.Background(), nil, "http://catalog.invalid")
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "", s.Get())
}

func TestNewSupplier_KeepsWorkingProxiesRoundRobin(t *testing.T) {
	// A forward proxy receives the absolute catalog URL; answering 200 is enough.
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	s := NewSupplier(context.Background(), []string{good.URL, failing.URL, closedURL, good.URL + "/"}, "http://catalog.invalid/health")

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, good.URL, s.Get())
	assert.Equal(t, good.URL+"/", s.Get())
	assert.Equal(t, good.URL, s.Get())
}
