package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	intrnl "parlor/internal"
	"parlor/internal/storage"
)

// ServerHandle represents a running HTTP server instance.
type ServerHandle struct {
	addr   string
	server *http.Server
	store  *storage.Store
	log    *slog.Logger
	done   chan struct{}
	err    error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer wires handlers, opens the SQLite store, runs migrations, and
// starts serving in the background. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig) (*ServerHandle, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = DefaultUploadDir()
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	server := intrnl.NewServer(store, logger, cfg.UploadDir, cfg.MaxImageSize)
	mux := http.NewServeMux()
	registerHandlers(mux, server, cfg.UploadDir)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	handle := &ServerHandle{
		addr:   listener.Addr().String(),
		server: httpServer,
		store:  store,
		log:    logger,
		done:   make(chan struct{}),
	}

	go func() {
		if ctx == nil {
			return
		}
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server shutdown", "err", err)
		}
	}()

	go handle.serve(listener)

	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if closeErr := h.store.Close(); closeErr != nil {
		h.log.Error("store close", "err", closeErr)
	}
	h.err = err
}

func registerHandlers(mux *http.ServeMux, server *intrnl.Server, uploadDir string) {
	mux.HandleFunc("/api/register", server.HandleRegister)
	mux.HandleFunc("/api/login", server.HandleLogin)
	mux.HandleFunc("/api/logout", server.HandleLogout)
	mux.HandleFunc("/api/user", server.HandleCurrentUser)
	mux.HandleFunc("/api/rooms", server.HandleRooms)
	mux.HandleFunc("/api/rooms/public", server.HandlePublicRooms)
	mux.HandleFunc("/api/rooms/", server.HandleRoomPath)
	mux.HandleFunc("/api/contacts", server.HandleContacts)
	mux.HandleFunc("/api/contacts/search", server.HandleContactSearch)
	mux.Handle("/metrics", server.MetricsHandler())
	mux.Handle("/static/uploads/", http.StripPrefix("/static/uploads/", http.FileServer(http.Dir(uploadDir))))
}
