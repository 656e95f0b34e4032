package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type ServerConfig struct {
	Log             zerolog.Logger
	Addr            string
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Handler         http.Handler
}

type server struct {
	log             zerolog.Logger
	srv             *http.Server
	shutdownTimeout time.Duration
}

// Run serves until ctx is done and then shuts the server down gracefully.
func (s *server) Run(ctx context.Context) error {
	s.log.Info().Msgf("starting server %s", s.srv.Addr)
	errc := make(chan error, 1)
	go func() {
		errc <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func New(cfg ServerConfig) (*server, error) {
	if cfg.Handler == nil {
		return nil, errors.New("please provide a Handler")
	}
	// put some sane defaults
	if len(cfg.Addr) == 0 {
		cfg.Addr = "127.0.0.1:8000"
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = time.Second * 10
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = time.Second * 5
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = time.Second * 120
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = time.Second * 5
	}

	ans := server{
		log:             cfg.Log,
		shutdownTimeout: cfg.ShutdownTimeout,
		srv: &http.Server{
			Addr:         cfg.Addr,
			WriteTimeout: cfg.WriteTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			IdleTimeout:  cfg.IdleTimeout,
			Handler:      cfg.Handler,
		},
	}
	return &ans, nil
}
