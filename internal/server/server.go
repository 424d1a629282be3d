// Package server is a sandbox implementation of the KSeF endpoints used by the
// connector. It performs the real cryptography (RSA-OAEP token unwrapping,
// AES-CBC document decryption, signed session tokens) so the whole client
// stack can be exercised locally and in tests.
package server

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Config holds server configuration
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool

	// PrivateKey is the Service key; a 2048-bit key is generated when nil
	PrivateKey *rsa.PrivateKey

	// Tokens maps NIP to the only long-lived token accepted for it.
	// When empty any token is accepted.
	Tokens map[string]string

	// PendingPolls is how many status queries report "processing" before the decision
	PendingPolls int

	SessionTTL   time.Duration
	ChallengeTTL time.Duration

	Logger zerolog.Logger
}

// Server represents the sandbox Service
type Server struct {
	config *Config
	router *gin.Engine
	key    *rsa.PrivateKey
	signer *sessionSigner
	now    func() time.Time

	mu          sync.Mutex
	challenges  map[string]issuedChallenge
	submissions map[string]*submission
}

type issuedChallenge struct {
	value   string
	expires time.Time
}

// submission is one received document and its predetermined outcome
type submission struct {
	nip        string
	polls      int
	code       int
	desc       string
	ksefNumber string
	acquiredAt time.Time
}

// NewServer creates a new sandbox server
func NewServer(config *Config) (*Server, error) {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if config.Debug {
		router.Use(gin.Logger())
	}

	key := config.PrivateKey
	if key == nil {
		var err error
		key, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("generating service key: %w", err)
		}
	}
	if config.SessionTTL == 0 {
		config.SessionTTL = 30 * time.Minute
	}
	if config.ChallengeTTL == 0 {
		config.ChallengeTTL = 10 * time.Minute
	}

	signer, err := newSessionSigner(config.SessionTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:      config,
		router:      router,
		key:         key,
		signer:      signer,
		now:         time.Now,
		challenges:  make(map[string]issuedChallenge),
		submissions: make(map[string]*submission),
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	// Unauthenticated
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/security/public-key-certificates", s.handlePublicKey)
	s.router.POST("/auth/challenge/nip/:nip", s.handleChallenge)
	s.router.POST("/auth/token/generate", s.handleGenerateToken)

	// Bearer session required
	invoices := s.router.Group("/invoices", s.requireSession)
	{
		invoices.POST("/send", s.handleSendInvoice)
		invoices.GET("/status/:ref", s.handleInvoiceStatus)
		invoices.POST("/download/request", s.handleDownloadRequest)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.config.Logger.Info().Str("address", s.config.Address).Msg("sandbox listening")
	return srv.ListenAndServe()
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// PublicKey returns the Service key clients encrypt to
func (s *Server) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// PrivateKey returns the Service key, for tests that decrypt payloads
func (s *Server) PrivateKey() *rsa.PrivateKey {
	return s.key
}
