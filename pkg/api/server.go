package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/guildhall-io/guildhall/pkg/async"
	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/authz"
	"github.com/guildhall-io/guildhall/pkg/directory"
	"github.com/guildhall-io/guildhall/pkg/grants"
	"github.com/guildhall-io/guildhall/pkg/httputil"
	"github.com/guildhall-io/guildhall/pkg/identity"
	"github.com/guildhall-io/guildhall/pkg/middleware"
	"github.com/guildhall-io/guildhall/pkg/notify"
	"github.com/guildhall-io/guildhall/pkg/observability"
	"github.com/guildhall-io/guildhall/pkg/requests"
	"github.com/guildhall-io/guildhall/pkg/roles"
)

// auditTimeout bounds the detached goroutine writing one audit entry.
const auditTimeout = 5 * time.Second

// defaultMaxBodyBytes caps request bodies. Governance payloads are tiny.
const defaultMaxBodyBytes = 1 << 20

// Options wires the server's collaborators. DB, Logger, Policy and
// Authenticator are required; the rest default to disabled.
type Options struct {
	DB            *sql.DB
	Logger        *observability.Logger
	Policy        *authz.Policy
	Authenticator *identity.Authenticator

	RateLimiter  *middleware.RateLimiter
	Metrics      *observability.Metrics
	OTelMetrics  *observability.OTelMetrics
	Audit        audit.Logger
	AuditReader  audit.Reader
	MaxBodyBytes int64
}

// Server is the HTTP surface of the governance subsystem.
type Server struct {
	router      *mux.Router
	logger      *observability.Logger
	metrics     *observability.Metrics
	audit       audit.Logger
	auditReader audit.Reader

	members    *directory.Store
	grantStore *grants.Store
	notify     *notify.Store
	requests   *requests.Service
	roles      *roles.Service
	gate       *authz.Gate
	policy     *authz.Policy
}

// NewServer creates the API server and mounts every route.
func NewServer(opts Options) *Server {
	auditLog := opts.Audit
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}

	s := &Server{
		router:      mux.NewRouter(),
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		audit:       auditLog,
		auditReader: opts.AuditReader,

		members:    directory.NewStore(opts.DB),
		grantStore: grants.NewStore(opts.DB),
		notify:     notify.NewStore(opts.DB),
		requests:   requests.NewService(opts.DB),
		roles:      roles.NewService(opts.DB),
		gate:       authz.NewGate(opts.DB),
		policy:     opts.Policy,
	}

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	s.router.Use(
		httputil.RequestID,
		httputil.Logging(opts.Logger),
		httputil.Recovery(opts.Logger),
	)
	if opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	}
	if opts.OTelMetrics != nil {
		s.router.Use(observability.OTelHTTPMiddleware(opts.OTelMetrics))
	}
	s.router.Use(
		httputil.MaxBytes(maxBody),
		opts.Authenticator.Middleware,
	)
	if opts.RateLimiter != nil {
		s.router.Use(opts.RateLimiter.Middleware)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Member directory
	v1.Handle("/members", s.guarded("directory.create", s.createMember)).Methods(http.MethodPost)
	v1.Handle("/members", s.guarded("directory.list", s.listMembers)).Methods(http.MethodGet)
	v1.HandleFunc("/members/{id:[0-9]+}", s.getMember).Methods(http.MethodGet)
	v1.Handle("/members/{id:[0-9]+}", s.guarded("directory.delete", s.deleteMember)).Methods(http.MethodDelete)
	v1.Handle("/members/{id:[0-9]+}/identity", s.guarded("directory.link", s.linkIdentity)).Methods(http.MethodPost)
	v1.HandleFunc("/me", s.getSelf).Methods(http.MethodGet)

	// Direct grants. No policy entry means super_admin only.
	v1.Handle("/members/{id:[0-9]+}/permissions", s.guarded("grants.direct", s.grantPermission)).Methods(http.MethodPost)
	v1.Handle("/members/{id:[0-9]+}/permissions/{key}", s.guarded("grants.direct", s.revokePermission)).Methods(http.MethodDelete)
	v1.HandleFunc("/members/{id:[0-9]+}/permissions", s.listPermissions).Methods(http.MethodGet)

	// Permission request workflow. Role checks live in the service.
	v1.HandleFunc("/requests", s.submitRequest).Methods(http.MethodPost)
	v1.HandleFunc("/requests/pending", s.listPendingRequests).Methods(http.MethodGet)
	v1.HandleFunc("/requests/mine", s.listMyRequests).Methods(http.MethodGet)
	v1.HandleFunc("/requests/{id:[0-9]+}/approve", s.approveRequest).Methods(http.MethodPost)
	v1.HandleFunc("/requests/{id:[0-9]+}/reject", s.rejectRequest).Methods(http.MethodPost)

	// Role transitions. The service enforces the caller role and the
	// head-count invariants.
	v1.HandleFunc("/roles", s.setRoles).Methods(http.MethodPost)

	// Notifications, always scoped to the caller.
	v1.HandleFunc("/notifications", s.listNotifications).Methods(http.MethodGet)
	v1.HandleFunc("/notifications/unread-count", s.unreadCount).Methods(http.MethodGet)
	v1.HandleFunc("/notifications/read-all", s.markAllRead).Methods(http.MethodPost)
	v1.HandleFunc("/notifications/{id:[0-9]+}/read", s.markRead).Methods(http.MethodPost)

	// Audit trail.
	v1.Handle("/audit/recent", s.guarded("audit.view", s.recentAuditEvents)).Methods(http.MethodGet)
}

// guarded wraps a handler with the policy check for the named operation.
func (s *Server) guarded(operation string, handler http.HandlerFunc) http.Handler {
	return authz.RequireOperation(s.gate, s.policy, operation)(handler)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// caller returns the authenticated member, writing a 401 when absent.
// The authenticator normally guarantees presence.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (*directory.Member, bool) {
	member, ok := identity.CallerFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
	}
	return member, ok
}

// recordAudit writes the event off the request path.
func (s *Server) recordAudit(event *audit.Event) {
	async.SafeGo(s.logger, auditTimeout, "audit entry", func(ctx context.Context) error {
		return s.audit.Log(ctx, event)
	})
}
