// Package email turns inbound messages into execution firings. A mail
// provider posts each raw message to the intake endpoint (SES/Mailgun style
// forwarding); triggers register recipient addresses to claim messages.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// IntakePath is where providers post raw RFC 5322 messages.
const IntakePath = "/inbound"

const maxMessageBytes = 10 << 20

type registration struct {
	deploymentID string
	nodeID       string
	callback     protocol.TriggerCallback
}

// Intake owns the HTTP endpoint shared by all email triggers in a process
// and routes parsed messages to registrations by recipient address.
type Intake struct {
	addr    string
	objects protocol.ObjectStore
	logger  *slog.Logger

	server   *http.Server
	mu       sync.RWMutex
	routes   map[string]*registration
	started  bool
	done     chan struct{}
	doneOnce sync.Once
}

// NewIntake creates the shared intake. objects receives attachment blobs
// and may be nil, in which case attachments are dropped.
func NewIntake(addr string, objects protocol.ObjectStore, logger *slog.Logger) *Intake {
	return &Intake{
		addr:    addr,
		objects: objects,
		logger:  logger.With("module", "email_intake"),
		routes:  make(map[string]*registration),
		done:    make(chan struct{}),
	}
}

func (in *Intake) register(address string, reg *registration) error {
	key := strings.ToLower(address)

	in.mu.Lock()
	defer in.mu.Unlock()

	if existing, exists := in.routes[key]; exists {
		return fmt.Errorf("email address %s already registered by node %s", address, existing.nodeID)
	}

	in.routes[key] = reg
	in.logger.Info("Registered email address", "address", key, "node_id", reg.nodeID)

	return nil
}

func (in *Intake) unregister(address string) {
	key := strings.ToLower(address)

	in.mu.Lock()
	defer in.mu.Unlock()

	if reg, exists := in.routes[key]; exists {
		delete(in.routes, key)
		in.logger.Info("Unregistered email address", "address", key, "node_id", reg.nodeID)
	}
}

// RouteCount reports how many addresses are currently registered.
func (in *Intake) RouteCount() int {
	in.mu.RLock()
	defer in.mu.RUnlock()

	return len(in.routes)
}

// Start brings the listener up once; later calls are no-ops. The server
// shuts down when ctx is cancelled.
func (in *Intake) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.started {
		return nil
	}

	in.server = &http.Server{
		Addr:              in.addr,
		Handler:           in,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		in.logger.Info("Starting email intake server", "addr", in.addr)

		if err := in.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			in.logger.Error("Email intake server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()

		if err := in.Stop(context.Background()); err != nil {
			in.logger.Error("Failed to stop email intake server", "error", err)
		}
	}()

	in.started = true

	return nil
}

func (in *Intake) Stop(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.doneOnce.Do(func() {
		close(in.done)
	})

	if !in.started || in.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := in.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown email intake server: %w", err)
	}

	in.started = false
	in.logger.Info("Email intake server stopped")

	return nil
}

func (in *Intake) Done() <-chan struct{} {
	return in.done
}

// ServeHTTP accepts one raw message per request and fires every
// registration whose address appears in To. Messages without a registered
// recipient are rejected so provider misrouting stays visible.
func (in *Intake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != IntakePath {
		http.Error(w, "not found", http.StatusNotFound)

		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "failed to read message", http.StatusBadRequest)

		return
	}

	message, err := ParseMessage(r.Context(), raw, in.objects)
	if err != nil {
		in.logger.Warn("Rejected unparseable email message", "error", err)
		http.Error(w, "unparseable email message", http.StatusBadRequest)

		return
	}

	matched := in.match(message.To)
	if len(matched) == 0 {
		in.logger.Warn("No trigger registered for recipients", "to", message.To)
		http.Error(w, "no trigger registered for recipients", http.StatusNotFound)

		return
	}

	for _, reg := range matched {
		fired := protocol.FiredTrigger{
			DeploymentID: reg.deploymentID,
			NodeID:       reg.nodeID,
			Kind:         models.TriggerKindEmail,
			Email:        message,
		}

		if err := reg.callback(r.Context(), fired); err != nil {
			in.logger.Error("Email firing rejected", "node_id", reg.nodeID, "error", err)
			http.Error(w, "failed to create execution", http.StatusInternalServerError)

			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)

	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":  "accepted",
		"matched": len(matched),
	}); err != nil {
		in.logger.Error("Failed to encode intake response", "error", err)
	}
}

func (in *Intake) match(recipients []string) []*registration {
	in.mu.RLock()
	defer in.mu.RUnlock()

	var matched []*registration

	for _, recipient := range recipients {
		if reg, ok := in.routes[strings.ToLower(recipient)]; ok {
			matched = append(matched, reg)
		}
	}

	return matched
}
