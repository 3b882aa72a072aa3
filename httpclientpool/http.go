package httpclientpool

import (
	"net/http"
	"sync"
	"time"
)

// HTTPClientPool shares one keep-alive transport between all routing engine
// calls so concurrent requests reuse connections to the same OSRM hosts.
type HTTPClientPool struct {
	timeout   time.Duration
	client    *http.Client
	transport *http.Transport
	once      sync.Once
}

var (
	poolInstance *HTTPClientPool
	poolMutex    sync.Mutex
)

// GetPoolInstance returns the process wide pool, created with the given
// timeout on first use. Later calls ignore the timeout.
func GetPoolInstance(timeout time.Duration) *HTTPClientPool {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if poolInstance == nil {
		poolInstance = New(timeout)
	}
	return poolInstance
}

func New(timeout time.Duration) *HTTPClientPool {
	return &HTTPClientPool{timeout: timeout}
}

// GetClient initializes (if needed) and returns the shared HTTP client.
func (pool *HTTPClientPool) GetClient() *http.Client {
	pool.once.Do(func() {
		pool.transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxConnsPerHost:     100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		}

		pool.client = &http.Client{
			Timeout:   pool.timeout,
			Transport: pool.transport,
		}
	})
	return pool.client
}

// Close cleans up resources by closing idle connections
func (pool *HTTPClientPool) Close() {
	if pool.transport != nil {
		pool.transport.CloseIdleConnections()
	}
}
