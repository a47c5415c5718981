// Package webhook turns inbound HTTP requests into execution firings. One
// shared server serves every registered webhook trigger; triggers register
// and unregister paths as deployments come and go.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

const maxBodyBytes = 1 << 20

type registration struct {
	deploymentID string
	nodeID       string
	method       string
	callback     protocol.TriggerCallback
}

// ServerManager owns the HTTP listener shared by all webhook triggers in a
// process. The activator creates exactly one and hands it to the factory.
type ServerManager struct {
	addr     string
	logger   *slog.Logger
	server   *http.Server
	mu       sync.RWMutex
	handlers map[string]*registration
	started  bool
	done     chan struct{}
	doneOnce sync.Once
}

func NewServerManager(addr string, logger *slog.Logger) *ServerManager {
	return &ServerManager{
		addr:     addr,
		logger:   logger.With("module", "webhook_server"),
		handlers: make(map[string]*registration),
		done:     make(chan struct{}),
	}
}

func (sm *ServerManager) register(path string, reg *registration) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if existing, exists := sm.handlers[path]; exists {
		return fmt.Errorf("webhook path %s already registered by node %s", path, existing.nodeID)
	}

	sm.handlers[path] = reg
	sm.logger.Info("Registered webhook handler", "path", path, "node_id", reg.nodeID)

	return nil
}

func (sm *ServerManager) unregister(path string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if reg, exists := sm.handlers[path]; exists {
		delete(sm.handlers, path)
		sm.logger.Info("Unregistered webhook handler", "path", path, "node_id", reg.nodeID)
	}
}

// HandlerCount reports how many paths are currently registered.
func (sm *ServerManager) HandlerCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.handlers)
}

// Start brings the listener up once; later calls are no-ops. The server
// shuts down when ctx is cancelled.
func (sm *ServerManager) Start(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.started {
		return nil
	}

	sm.server = &http.Server{
		Addr:              sm.addr,
		Handler:           sm,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sm.logger.Info("Starting webhook HTTP server", "addr", sm.addr)

		if err := sm.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sm.logger.Error("Webhook server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()

		if err := sm.Stop(context.Background()); err != nil {
			sm.logger.Error("Failed to stop webhook server", "error", err)
		}
	}()

	sm.started = true

	return nil
}

// Stop shuts the listener down and releases Done.
func (sm *ServerManager) Stop(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.doneOnce.Do(func() {
		close(sm.done)
	})

	if !sm.started || sm.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sm.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown webhook server: %w", err)
	}

	sm.started = false
	sm.logger.Info("Webhook server stopped")

	return nil
}

func (sm *ServerManager) Done() <-chan struct{} {
	return sm.done
}

// ServeHTTP routes a request to the registration for its exact path and
// fires the callback synchronously, so the HTTP status reflects whether an
// execution was actually created.
func (sm *ServerManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sm.mu.RLock()
	reg, exists := sm.handlers[r.URL.Path]
	sm.mu.RUnlock()

	if !exists {
		http.Error(w, "webhook path not found", http.StatusNotFound)

		return
	}

	if r.Method != reg.method {
		w.Header().Set("Allow", reg.method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)

		return
	}

	request := &models.WebhookRequest{
		Method:     r.Method,
		Path:       r.URL.Path,
		Headers:    firstValues(r.Header),
		Query:      firstValues(r.URL.Query()),
		Body:       normalizeBody(body),
		ReceivedAt: time.Now().UTC(),
	}

	fired := protocol.FiredTrigger{
		DeploymentID: reg.deploymentID,
		NodeID:       reg.nodeID,
		Kind:         models.TriggerKindWebhook,
		Webhook:      request,
	}

	if err := reg.callback(r.Context(), fired); err != nil {
		sm.logger.Error("Webhook firing rejected", "path", r.URL.Path, "error", err)
		http.Error(w, "failed to create execution", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)

	if err := json.NewEncoder(w).Encode(map[string]string{"status": "accepted"}); err != nil {
		sm.logger.Error("Failed to encode webhook response", "error", err)
	}
}

func firstValues(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))

	for name, vs := range values {
		if len(vs) > 0 {
			out[name] = vs[0]
		}
	}

	return out
}

// normalizeBody keeps JSON bodies verbatim and wraps anything else as a
// JSON string so the stored payload always round-trips.
func normalizeBody(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}

	if json.Valid(body) {
		return body
	}

	wrapped, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}

	return wrapped
}
