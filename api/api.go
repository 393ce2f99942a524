package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vocdoni/vocdoni-credentials/issuer"
	"github.com/vocdoni/vocdoni-credentials/log"
)

// maxRequestBodySize bounds the JSON bodies, a full voter roll included.
const maxRequestBodySize = 128 << 20

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host   string
	Port   int
	Issuer *issuer.Issuer
	// AdminToken protects issuance, export and verification. If empty
	// those endpoints always answer 401.
	AdminToken string
}

// API type represents the API HTTP server.
type API struct {
	router     *chi.Mux
	issuer     *issuer.Issuer
	adminToken string
	server     *http.Server
	listener   net.Listener
}

// New creates a new API instance with the given configuration and starts
// serving it. Port 0 picks a free port, see Addr.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Issuer == nil {
		return nil, fmt.Errorf("missing issuer instance")
	}
	a := &API{
		issuer:     conf.Issuer,
		adminToken: conf.AdminToken,
	}
	if a.adminToken == "" {
		log.Warnw("no admin token configured, admin endpoints are disabled")
	}

	// Initialize router
	a.initRouter()

	var err error
	a.listener, err = net.Listen("tcp", net.JoinHostPort(conf.Host, fmt.Sprint(conf.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s:%d: %w", conf.Host, conf.Port, err)
	}
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "addr", a.listener.Addr().String())
		if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server stopped")
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Addr returns the address the server listens on.
func (a *API) Addr() net.Addr {
	return a.listener.Addr()
}

// Shutdown stops accepting connections and waits for the in-flight requests
// until ctx is done.
func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", MetricsEndpoint, "method", "GET")
	a.router.Method(http.MethodGet, MetricsEndpoint, promhttp.Handler())

	log.Infow("register handler", "endpoint", ElectionEndpoint, "method", "GET")
	a.router.Get(ElectionEndpoint, a.election)
	log.Infow("register handler", "endpoint", VoterCredentialEndpoint, "method", "GET")
	a.router.Get(VoterCredentialEndpoint, a.voterCredential)
	log.Infow("register handler", "endpoint", VoterVoteEndpoint, "method", "GET")
	a.router.Get(VoterVoteEndpoint, a.voteStatus)
	log.Infow("register handler", "endpoint", VotesEndpoint, "method", "POST")
	a.router.Post(VotesEndpoint, a.recordVote)

	a.router.Group(func(r chi.Router) {
		r.Use(a.adminOnly)
		log.Infow("register handler", "endpoint", ElectionsEndpoint, "method", "GET", "admin", true)
		r.Get(ElectionsEndpoint, a.listElections)
		log.Infow("register handler", "endpoint", CredentialsEndpoint, "method", "POST", "admin", true)
		r.Post(CredentialsEndpoint, a.issueCredentials)
		log.Infow("register handler", "endpoint", CredentialsEndpoint, "method", "GET", "admin", true)
		r.Get(CredentialsEndpoint, a.exportCredentials)
		log.Infow("register handler", "endpoint", VerifyEndpoint, "method", "POST", "admin", true)
		r.Post(VerifyEndpoint, a.verifyCommitment)
	})
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))
	a.router.Use(middleware.RequestSize(maxRequestBodySize))

	// Register the API handlers
	a.registerHandlers()
}

// adminOnly rejects requests without the admin bearer token.
func (a *API) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || a.adminToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) != 1 {
			ErrUnauthorized.Withf("missing or wrong admin token").Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
