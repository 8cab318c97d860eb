package httpapi

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"

	"github.com/sufield/popc/internal/config"
)

// Server is the HTTP listener. In spiffe mode it serves mutual TLS with SVIDs
// from the SPIRE Workload API and only admits clients of the configured
// trust domain; API keys are checked on top.
type Server struct {
	cfg        config.HTTPConfig
	server     *http.Server
	x509Source *workloadapi.X509Source
	log        zerolog.Logger
}

// NewServer prepares a server for handler. In spiffe mode it connects to the
// Workload API and blocks until the first SVID arrives.
func NewServer(ctx context.Context, cfg config.HTTPConfig, handler http.Handler, logger zerolog.Logger) (*Server, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	s := &Server{
		cfg: cfg,
		log: logger,
		server: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}

	if cfg.TLS.Mode == "spiffe" {
		tlsCfg, source, err := spiffeTLS(ctx, cfg.TLS)
		if err != nil {
			return nil, err
		}
		s.server.TLSConfig = tlsCfg
		s.x509Source = source
	}
	return s, nil
}

// spiffeTLS builds the mTLS config. The X509Source rotates SVIDs in the
// background until closed.
func spiffeTLS(ctx context.Context, c config.TLSConfig) (*tls.Config, *workloadapi.X509Source, error) {
	td, err := spiffeid.TrustDomainFromString(c.AllowedClientTrustDomain)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid allowed client trust domain: %w", err)
	}

	var opts []workloadapi.X509SourceOption
	if c.SocketPath != "" {
		opts = append(opts, workloadapi.WithClientOptions(workloadapi.WithAddr(normalizeSocket(c.SocketPath))))
	}
	source, err := workloadapi.NewX509Source(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create X509Source: %w", err)
	}

	tlsCfg := tlsconfig.MTLSServerConfig(source, source, tlsconfig.AuthorizeMemberOf(td))
	tlsCfg.MinVersion = tls.VersionTLS13
	return tlsCfg, source, nil
}

// normalizeSocket prefixes bare filesystem paths with unix://.
func normalizeSocket(raw string) string {
	if strings.HasPrefix(raw, "unix://") || strings.HasPrefix(raw, "tcp://") {
		return raw
	}
	return "unix://" + raw
}

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.server.TLSConfig != nil {
			// Empty cert and key files because TLSConfig provides them
			err = s.server.ServeTLS(ln, "", "")
		} else {
			err = s.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	s.log.Info().
		Str("address", ln.Addr().String()).
		Bool("mtls", s.server.TLSConfig != nil).
		Msg("http server listening")

	select {
	case err := <-errCh:
		s.closeSource()
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down gracefully")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	if serveErr := <-errCh; err == nil {
		err = serveErr
	}
	s.closeSource()
	if err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) closeSource() {
	if s.x509Source == nil {
		return
	}
	if err := s.x509Source.Close(); err != nil {
		s.log.Warn().Err(err).Msg("error closing X509Source")
	}
}
