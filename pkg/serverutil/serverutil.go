package serverutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/andrej220/synctity/pkg/lg"
	"github.com/go-playground/validator/v10"
)

// PortEnv is consulted when ServerConfig.Port is empty.
const PortEnv = "SYNCTITYPORT"

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Logger          lg.Logger
}

// DefaultServerConfig provides default server configuration values.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            "8084",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Logger:          lg.Discard,
	}
}

// RunServer listens on the configured port and serves handler until ctx is
// done, then shuts down gracefully.
func RunServer(ctx context.Context, handler http.Handler, config ServerConfig) error {
	if config.Port == "" {
		config.Port = os.Getenv(PortEnv)
		if config.Port == "" {
			config.Port = DefaultServerConfig().Port
		}
	}
	ln, err := net.Listen("tcp", ":"+config.Port)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", config.Port, err)
	}
	return Serve(ctx, ln, handler, config)
}

// Serve is RunServer on an existing listener.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler, config ServerConfig) error {
	logger := config.Logger
	if logger == nil {
		logger = lg.Discard
	}
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return lg.Attach(context.Background(), logger)
		},
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Server starting", lg.String("addr", ln.Addr().String()))
		errc <- server.Serve(ln)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("Server stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("Server stopped gracefully")
	return nil
}

type requestKey struct{}

// RequestFromContext returns the request body decoded by a ValidationHandler.
func RequestFromContext[T any](ctx context.Context) (T, bool) {
	req, ok := ctx.Value(requestKey{}).(T)
	return req, ok
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationHandler is a middleware that decodes and validates JSON request
// bodies of type T.
type ValidationHandler[T any] struct {
	next http.Handler
	// MaxBytes caps the request body.
	MaxBytes int64
}

// NewValidationHandler creates a new validation handler for the given request type.
func NewValidationHandler[T any](next http.Handler) http.Handler {
	return &ValidationHandler[T]{next: next, MaxBytes: 1 << 20}
}

// ServeHTTP decodes and validates the JSON request, passing it to the next handler via context.
func (h *ValidationHandler[T]) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var request T
	decoder := json.NewDecoder(http.MaxBytesReader(rw, r.Body, h.MaxBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		reject(rw, r, err)
		return
	}
	if err := validate.Struct(request); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			reject(rw, r, err)
			return
		}
	}

	ctx := context.WithValue(r.Context(), requestKey{}, request)
	h.next.ServeHTTP(rw, r.WithContext(ctx))
}

func reject(rw http.ResponseWriter, r *http.Request, err error) {
	lg.FromContext(r.Context()).Debug("Request rejected", lg.String("path", r.URL.Path), lg.Err(err))
	http.Error(rw, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
}

// WriteJSON encodes v with the given status code.
func WriteJSON(rw http.ResponseWriter, status int, v any, logger lg.Logger) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil && logger != nil {
		logger.Error("Failed to encode response", lg.Err(err))
	}
}
