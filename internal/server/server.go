package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"carevault/internal/blob"
	"carevault/internal/chunkstore"
	"carevault/internal/config"
	"carevault/internal/store"
)

const (
	apiTokenEnvKey         = "CAREVAULT_API_TOKEN"
	allowRemoteEnvKey      = "CAREVAULT_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 10 * time.Minute
	writeTimeout           = 10 * time.Minute
	idleTimeout            = 60 * time.Second
	uploadConcurrencyLimit = 8
	sweepConcurrencyLimit  = 1
)

// Server wraps HTTP handlers for the carevault API.
type Server struct {
	addr           string
	store          *store.Store
	chunks         chunkstore.Store
	engine         *blob.Engine
	patients       *PatientService
	files          *FileService
	logger         *slog.Logger
	apiToken       string
	adminTokenHash string
	dbPath         string
	chunkBackend   string
	multipartMem   int64
	uploadLimiter  chan struct{}
	sweepLimiter   chan struct{}
}

// New creates a new server instance over the opened stores.
func New(addr string, st *store.Store, chunks chunkstore.Store, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}

	policy := blob.NewPolicy(
		cfg.Files.InlineMaxBytes,
		cfg.Files.Base64InlineMaxBytes,
		cfg.Files.ChunkSize,
		cfg.Files.MaxUploadBytes,
		cfg.Files.AllowedContentTypes,
	)
	engine, err := blob.NewEngine(st, chunks, cfg.ChunkStore.Backend, policy)
	if err != nil {
		return nil, err
	}

	multipartMem := cfg.Files.MultipartMaxMemory
	if multipartMem <= 0 {
		multipartMem = config.DefaultFileMultipartMemory
	}

	return &Server{
		addr:           addr,
		store:          st,
		chunks:         chunks,
		engine:         engine,
		patients:       NewPatientService(st),
		files:          NewFileService(st, engine, chunks),
		logger:         logger,
		apiToken:       strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminTokenHash: cfg.AdminTokenHash,
		dbPath:         cfg.DBPath,
		chunkBackend:   cfg.ChunkStore.Backend,
		multipartMem:   multipartMem,
		uploadLimiter:  make(chan struct{}, uploadConcurrencyLimit),
		sweepLimiter:   make(chan struct{}, sweepConcurrencyLimit),
	}, nil
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr, "chunk_backend", s.chunkBackend)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server.ListenAndServe()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
