package server

import (
	"context"
	"sync"

	"github.com/teemow/coachcontacts/internal/contactsync"
	"github.com/teemow/coachcontacts/internal/credentials"
	"github.com/teemow/coachcontacts/internal/instrumentation"
)

// ServerContext holds what the HTTP endpoints and MCP tools share: the
// contact service, the session store and the process lifetime.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	contacts *contactsync.Service
	sessions *credentials.Store
	yolo     bool

	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context. yolo enables tools that modify
// the coach's sheet.
func NewServerContext(ctx context.Context, svc *contactsync.Service, sessions *credentials.Store, yolo bool) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		contacts: svc,
		sessions: sessions,
		yolo:     yolo,
	}
}

// Context is canceled on Shutdown.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Contacts returns the contact service.
func (sc *ServerContext) Contacts() *contactsync.Service {
	return sc.contacts
}

// Sessions returns the credential store.
func (sc *ServerContext) Sessions() *credentials.Store {
	return sc.sessions
}

// Yolo reports whether write tools are enabled.
func (sc *ServerContext) Yolo() bool {
	return sc.yolo
}

// SetMetrics sets the metrics recorder used by instrumented tools.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, or nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger used by instrumented tools.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// AuditLogger returns the audit logger, or nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
