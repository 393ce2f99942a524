package service

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vocdoni/vocdoni-credentials/api"
	"github.com/vocdoni/vocdoni-credentials/issuer"
	"github.com/vocdoni/vocdoni-credentials/log"
)

// shutdownTimeout bounds how long Stop waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	issuer     *issuer.Issuer
	api        *api.API
	mu         sync.Mutex
	cancel     context.CancelFunc
	host       string
	port       int
	adminToken string
}

// NewAPI creates a new APIService instance.
func NewAPI(iss *issuer.Issuer, host string, port int, adminToken string) *APIService {
	return &APIService{
		issuer:     iss,
		host:       host,
		port:       port,
		adminToken: adminToken,
	}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start. The server is also stopped
// when ctx is done.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}

	var err error
	as.api, err = api.New(&api.APIConfig{
		Host:       as.host,
		Port:       as.port,
		Issuer:     as.issuer,
		AdminToken: as.adminToken,
	})
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	var svcCtx context.Context
	svcCtx, as.cancel = context.WithCancel(ctx)
	go func(a *api.API) {
		<-svcCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			log.Warnw("API server shutdown", "error", err)
		}
	}(as.api)
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel == nil {
		return
	}
	as.cancel()
	as.cancel = nil
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := as.api.Shutdown(shutdownCtx); err != nil {
		log.Warnw("API server shutdown", "error", err)
	}
}

// HostPort returns the host and port of the API server. Once started, the
// port is the one actually bound, which differs from the configured one
// when that was 0.
func (as *APIService) HostPort() (string, int) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.api != nil && as.cancel != nil {
		if addr, ok := as.api.Addr().(*net.TCPAddr); ok {
			return as.host, addr.Port
		}
	}
	return as.host, as.port
}
