package chat

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andrew264/quickchat/internal/config"
	"github.com/andrew264/quickchat/internal/discovery"
	"github.com/andrew264/quickchat/internal/protocol"
)

// Server ties the pieces together: the TCP listener spawning one session
// handler per connection, the registry event loop, the UDP discovery
// responder, and the metrics endpoint. All shared state lives behind the
// registry; the Server itself holds no message state.
type Server struct {
	addr        string
	metricsAddr string
	outboxSize  int
	logger      *slog.Logger
	reg         *Registry
	responder   *discovery.Responder
	listener    net.Listener
	metricsSrv  *http.Server
}

func NewServer(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	outbox := cfg.OutboxSize
	if outbox <= 0 {
		outbox = 64
	}
	return &Server{
		addr:        cfg.ListenAddr(),
		metricsAddr: cfg.MetricsAddr,
		outboxSize:  outbox,
		logger:      logger,
		reg:         NewRegistry(cfg.EventBuffer, NewHistory(cfg.HistoryLimit), logger),
		responder:   discovery.NewResponder(cfg.DiscoveryPort, logger),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	if err := s.responder.Start(); err != nil {
		ln.Close()
		return err
	}

	go s.reg.Run()
	go s.acceptLoop(ln)

	if s.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsSrv = &http.Server{Addr: s.metricsAddr, Handler: mux}
		go func() {
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	s.logger.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Stop() {
	s.logger.Info("shutting down")

	if s.listener != nil {
		s.listener.Close()
	}
	s.responder.Stop()
	if s.metricsSrv != nil {
		s.metricsSrv.Close()
	}

	s.reg.Stop()
	s.reg.Wait()

	s.logger.Info("shutdown complete")
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed; normal shutdown path.
			return
		}

		s.logger.Info("client connected", "addr", conn.RemoteAddr().String())

		sess := &Session{
			ID:   conn.RemoteAddr().String(),
			Conn: conn,
			Out:  make(chan protocol.Message, s.outboxSize),
		}
		go HandleSession(sess, s.reg.Events(), s.logger)
	}
}
