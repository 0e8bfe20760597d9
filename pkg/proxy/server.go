package proxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/events"
	"mercator-hq/ganymede/pkg/providers"
	"mercator-hq/ganymede/pkg/runtime"
	"mercator-hq/ganymede/pkg/security/ca"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/telemetry/tracing"
)

// maxBufferedBody bounds request bodies read into memory before dispatch.
const maxBufferedBody = 32 << 20

// Server is the request orchestrator. It owns the listening socket,
// terminates CONNECT tunnels with certificates from the authority,
// resolves the active provider from the runtime snapshot, and dispatches
// decrypted requests to the matching plugin inside a failure boundary.
type Server struct {
	cfg      config.ProxyConfig
	ca       *ca.Authority
	registry *providers.Registry
	store    *runtime.Store
	sink     events.Sink
	metrics  *metrics.Metrics
	tracer   *tracing.Tracer
	logger   *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    sync.WaitGroup
	closed   bool
}

// NewServer wires the orchestrator. sink, m, and tracer may be nil.
func NewServer(cfg config.ProxyConfig, authority *ca.Authority, registry *providers.Registry, store *runtime.Store, sink events.Sink, m *metrics.Metrics, tracer *tracing.Tracer, logger *slog.Logger) *Server {
	if sink == nil {
		sink = events.Multi{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		ca:       authority,
		registry: registry,
		store:    store,
		sink:     sink,
		metrics:  m,
		tracer:   tracer,
		logger:   logger.With("component", "proxy"),
	}
}

// ListenAndServe binds the configured address and serves until ctx is
// cancelled or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln, one goroutine per connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("proxy listening", "address", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Shutdown stops accepting and waits for in-flight connections up to the
// configured timeout.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timed out after %s", timeout)
	}
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleConn serves one client connection: the CONNECT handshake, TLS
// termination, then a loop of decrypted requests.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if s.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		s.logger.Debug("failed to read initial request", "error", err)
		return
	}

	if req.Method != http.MethodConnect {
		fmt.Fprintf(conn, "HTTP/1.1 405 Method Not Allowed\r\nContent-Length: 18\r\nConnection: close\r\n\r\nMethod Not Allowed")
		return
	}

	host, _, err := ParseConnectAuthority(req.Host)
	if err != nil {
		s.logger.Warn("rejecting malformed connect authority", "authority", req.Host, "error", err)
		s.countConnect("bad_authority")
		fmt.Fprintf(conn, "HTTP/1.1 400 Bad Request\r\nContent-Length: 21\r\nConnection: close\r\n\r\nBad connect authority")
		return
	}

	tlsConf, err := s.ca.CertificateFor(host)
	if err != nil {
		s.logger.Error("failed to provision leaf certificate", "host", host, "error", err)
		s.countConnect("cert_failure")
		fmt.Fprintf(conn, "HTTP/1.1 500 Internal Server Error\r\nContent-Length: 26\r\nConnection: close\r\n\r\nCannot provision leaf cert")
		return
	}

	if _, err := io.WriteString(conn, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		return
	}

	tlsConn := tls.Server(conn, tlsConf)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		s.logger.Debug("client TLS handshake failed", "host", host, "error", err)
		s.countConnect("handshake_failure")
		return
	}
	s.countConnect("ok")

	s.serveTLS(ctx, tlsConn, host)
}

// serveTLS reads decrypted requests off the tunnel until the client goes
// away or a streamed response requires the connection to close.
func (s *Server) serveTLS(ctx context.Context, tlsConn *tls.Conn, host string) {
	br := bufio.NewReader(tlsConn)
	for {
		if s.cfg.ReadTimeout > 0 {
			tlsConn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}

		req, err := http.ReadRequest(br)
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("failed to read decrypted request", "host", host, "error", err)
			}
			return
		}
		req = req.WithContext(ctx)

		if !s.handleRequest(tlsConn, req) {
			return
		}
	}
}

// handleRequest dispatches one decrypted request. It reports whether the
// connection can serve another request afterwards.
func (s *Server) handleRequest(conn io.Writer, req *http.Request) bool {
	snap := s.store.Load()
	providerID := snap.ActiveProvider

	plugin, ok := s.registry.Get(providerID)
	if !ok {
		s.logger.Error("active provider has no registered plugin", "provider", providerID)
		s.respondPlain(conn, http.StatusBadGateway, fmt.Sprintf("No provider plugin %q", providerID))
		return false
	}

	var body []byte
	if plugin.ExpectsJSONBody(req.URL.Path) && req.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(req.Body, maxBufferedBody))
		if err != nil {
			s.logger.Debug("failed to read request body", "error", err)
			s.respondPlain(conn, http.StatusBadRequest, "Bad Request")
			return false
		}
	}

	rctx := providers.NewRequestContext(conn, req, body, snap, s.sink, s.logger)
	if s.metrics != nil {
		rctx.OnStreamBytes = func(n int) {
			s.metrics.StreamBytes.WithLabelValues(providerID).Add(float64(n))
		}
	}
	start := time.Now()

	if s.tracer != nil {
		_, sp := s.tracer.StartRequest(req.Context(), providerID, req.URL.Path)
		defer sp.End()
	}

	outcome := s.dispatch(rctx, plugin, providerID)

	if s.metrics != nil {
		s.metrics.RequestsTotal.WithLabelValues(providerID, outcome).Inc()
		s.metrics.RequestDuration.WithLabelValues(providerID).Observe(time.Since(start).Seconds())
		if outcome == "failed" {
			s.metrics.PluginFailures.WithLabelValues(providerID).Inc()
		}
	}

	// Unread body bytes would be parsed as the next request line, so
	// drain whatever the wire still holds before reusing the tunnel.
	if req.Body != nil {
		if _, err := io.Copy(io.Discard, req.Body); err != nil {
			return false
		}
		req.Body.Close()
	}

	return outcome == "ok" && !rctx.CloseAfterResponse()
}

// dispatch invokes the plugin inside the failure boundary. A panic or
// returned error yields exactly one 502 naming the provider and one
// proxy-error event; the process and other requests are unaffected.
func (s *Server) dispatch(rctx *providers.RequestContext, plugin providers.Plugin, providerID string) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("provider plugin panicked", "provider", providerID, "panic", r)
			s.failRequest(rctx, providerID, fmt.Sprintf("panic: %v", r))
			outcome = "failed"
		}
	}()

	handled, err := plugin.HandleRequest(rctx)
	if err != nil {
		s.logger.Error("provider plugin failed", "provider", providerID, "error", err)
		s.failRequest(rctx, providerID, err.Error())
		return "failed"
	}
	if !handled {
		if !rctx.Responded() {
			rctx.RespondText(http.StatusNotFound, "Not Found")
		}
		return "unhandled"
	}
	return "ok"
}

// failRequest answers the 502 and emits the proxy-error event, unless a
// response was already under way.
func (s *Server) failRequest(rctx *providers.RequestContext, providerID, detail string) {
	rctx.Emit(providerID, events.KindProxyError, detail, nil)
	if !rctx.Responded() {
		rctx.RespondText(http.StatusBadGateway, fmt.Sprintf("Provider plugin '%s' failed", providerID))
	}
}

func (s *Server) respondPlain(conn io.Writer, status int, body string) {
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, http.StatusText(status), len(body), body)
}

func (s *Server) countConnect(result string) {
	if s.metrics != nil {
		s.metrics.ConnectTotal.WithLabelValues(result).Inc()
	}
}
