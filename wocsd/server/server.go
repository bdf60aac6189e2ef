package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/Oudwins/wocs/internals/logbuf"
	"github.com/Oudwins/wocs/internals/timeouts"
	"github.com/Oudwins/wocs/internals/version"
	"github.com/Oudwins/wocs/wocsd/core"
)

type Server struct {
	Base       *core.BaseServer
	Logbuf     *logbuf.Logger
	httpServer *http.Server
}

func New(base *core.BaseServer) *Server {
	buffer := logbuf.New(
		slog.String("version", version.Version()),
		slog.Int("port", base.Env.PORT),
	)
	return &Server{
		Base:   base,
		Logbuf: buffer,
	}
}

// Serve listens on the configured address until ctx is done, then shuts the
// HTTP server down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.Base.Env.LISTEN_ADDR)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Base.Logger.Info("[SERVER] Listening", slog.String("addr", listener.Addr().String()))
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.Base.Logger.Error("[SERVER] Shutdown failed", slog.String("error", err.Error()))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
