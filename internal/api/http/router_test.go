package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/helpdeskhq/support-desk/internal/api/http/handlers"
	"github.com/helpdeskhq/support-desk/internal/auth"
	"github.com/helpdeskhq/support-desk/internal/config"
	"github.com/helpdeskhq/support-desk/internal/domain"
	"github.com/helpdeskhq/support-desk/internal/events"
	"github.com/helpdeskhq/support-desk/internal/observability"
	"github.com/helpdeskhq/support-desk/internal/persistence"
	"github.com/helpdeskhq/support-desk/internal/repository"
	"github.com/helpdeskhq/support-desk/internal/service"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
	users  map[string]*domain.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	logger := zap.NewNop()
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  store.Tickets(),
		CommentRepo: store.Comments(),
		HistoryRepo: store.History(),
		UserRepo:    store.Users(),
		Dispatcher:  events.NewInMemoryDispatcher(),
		Metrics:     metrics,
		Logger:      logger,
	})
	assignment := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo:    store.Tickets(),
		UserRepo:      store.Users(),
		TicketService: tickets,
	})
	users := service.NewUserService(service.UserDependencies{
		UserRepo:   store.Users(),
		TicketRepo: store.Tickets(),
		BcryptCost: bcrypt.MinCost,
	})
	authService := service.NewAuthService(config.AuthConfig{
		JWTSecret:             "router-test-secret",
		AccessTokenTTLMinutes: 30,
		BcryptCost:            bcrypt.MinCost,
	}, service.AuthDependencies{UserRepo: store.Users()})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-desk", "test", &persistence.Postgres{}, &persistence.Redis{}),
		Users:          handlers.NewUsersHandler(authService, users),
		Tickets:        handlers.NewTicketsHandler(tickets, assignment),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), store.Users()),
		Metrics:        metrics,
	})

	srv := &testServer{app: app, tokens: authService.TokenManager(), users: map[string]*domain.User{}}
	for _, u := range []struct {
		key  string
		role domain.Role
	}{
		{"alice", domain.RoleUser},
		{"bob", domain.RoleUser},
		{"tech", domain.RoleTechnician},
		{"admin", domain.RoleAdmin},
	} {
		user := &domain.User{ID: "id-" + u.key, Name: u.key, Email: u.key + "@example.com", Role: u.role, Active: true}
		if err := store.Users().Create(context.Background(), user); err != nil {
			t.Fatalf("seed %s: %v", u.key, err)
		}
		srv.users[u.key] = user
	}
	return srv
}

func (s *testServer) do(t *testing.T, method, path, as string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != "" {
		token, _, err := s.tokens.GenerateToken(s.users[as])
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp.StatusCode, out
}

func dataOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object: %v", body)
	}
	return data
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, http.MethodPost, "/api/tickets", "alice", map[string]any{
		"title":       "Serveur de production bloqué",
		"description": "Le service est critique pour la paie",
		"category":    "Serveur",
	})
	if status != http.StatusCreated {
		t.Fatalf("create status %d: %v", status, body)
	}
	ticket := dataOf(t, body)
	id := ticket["id"].(string)
	if ticket["priority"] != "critical" || ticket["category"] != "server" || ticket["status"] != "open" {
		t.Fatalf("unexpected ticket %v", ticket)
	}
	if ticket["resolution"] != nil {
		t.Fatalf("open ticket must not carry a resolution: %v", ticket["resolution"])
	}

	status, body = srv.do(t, http.MethodPost, "/api/tickets/"+id+"/comments", "alice", map[string]any{"text": "  "})
	if status != http.StatusBadRequest || errorCode(body) != "VALIDATION_FAILED" {
		t.Fatalf("empty comment: %d %v", status, body)
	}

	status, body = srv.do(t, http.MethodPost, "/api/tickets/"+id+"/comments", "alice", map[string]any{"text": "toujours bloqué"})
	if status != http.StatusCreated {
		t.Fatalf("comment status %d: %v", status, body)
	}
	if comments := dataOf(t, body)["comments"].([]any); len(comments) != 1 {
		t.Fatalf("expected one comment, got %v", comments)
	}

	status, body = srv.do(t, http.MethodPost, "/api/tickets/"+id+"/resolve", "alice", map[string]any{"solution_description": "x"})
	if status != http.StatusForbidden {
		t.Fatalf("requester resolve: %d %v", status, body)
	}

	status, body = srv.do(t, http.MethodPost, "/api/tickets/"+id+"/resolve", "tech", map[string]any{
		"solution_description": "Service redémarré",
		"resolution_type":      "configuration",
		"time_spent_minutes":   "-5",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("negative time spent: %d %v", status, body)
	}

	status, body = srv.do(t, http.MethodPost, "/api/tickets/"+id+"/resolve", "tech", map[string]any{
		"solution_description": "Service redémarré",
		"resolution_type":      "configuration",
		"time_spent_minutes":   40,
	})
	if status != http.StatusOK {
		t.Fatalf("resolve: %d %v", status, body)
	}
	resolved := dataOf(t, body)
	resolution, ok := resolved["resolution"].(map[string]any)
	if resolved["status"] != "resolved" || !ok || resolution["time_spent_minutes"] != float64(40) {
		t.Fatalf("unexpected resolved ticket %v", resolved)
	}

	status, body = srv.do(t, http.MethodPut, "/api/tickets/"+id, "tech", map[string]any{"status": "closed"})
	if status != http.StatusOK || dataOf(t, body)["status"] != "closed" {
		t.Fatalf("close: %d %v", status, body)
	}

	status, body = srv.do(t, http.MethodPost, "/api/tickets/"+id+"/resolve", "tech", map[string]any{"solution_description": "again"})
	if status != http.StatusConflict || errorCode(body) != "INVALID_TRANSITION" {
		t.Fatalf("resolve closed: %d %v", status, body)
	}

	status, body = srv.do(t, http.MethodGet, "/api/tickets/"+id+"/history", "tech", nil)
	if status != http.StatusOK {
		t.Fatalf("history: %d %v", status, body)
	}
	if entries := body["data"].([]any); len(entries) != 2 {
		t.Fatalf("expected resolution and close entries, got %v", entries)
	}
}

func TestDeleteTicketOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	_, body := srv.do(t, http.MethodPost, "/api/tickets", "alice", map[string]any{
		"title": "Imprimante", "description": "bourrage papier", "category": "printer",
	})
	id := dataOf(t, body)["id"].(string)

	status, body := srv.do(t, http.MethodDelete, "/api/tickets/"+id, "bob", nil)
	if status != http.StatusForbidden || errorCode(body) != "FORBIDDEN" {
		t.Fatalf("stranger delete: %d %v", status, body)
	}
	if status, _ := srv.do(t, http.MethodGet, "/api/tickets/"+id, "alice", nil); status != http.StatusOK {
		t.Fatalf("ticket should survive a forbidden delete, got %d", status)
	}
	if status, _ := srv.do(t, http.MethodDelete, "/api/tickets/"+id, "alice", nil); status != http.StatusNoContent {
		t.Fatalf("creator delete: %d", status)
	}
	status, body = srv.do(t, http.MethodGet, "/api/tickets/"+id, "alice", nil)
	if status != http.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Fatalf("deleted ticket: %d %v", status, body)
	}
}

func TestUpdateAssigneeOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	_, body := srv.do(t, http.MethodPost, "/api/tickets", "alice", map[string]any{
		"title": "VPN", "description": "connexion lente", "category": "network",
	})
	id := dataOf(t, body)["id"].(string)

	status, body := srv.do(t, http.MethodPut, "/api/tickets/"+id, "tech", map[string]any{"assigned_to": "id-tech"})
	if status != http.StatusOK {
		t.Fatalf("assign: %d %v", status, body)
	}
	if got := dataOf(t, body); got["assigned_to"] != "id-tech" || got["status"] != "assigned" {
		t.Fatalf("unexpected assignment %v", got)
	}

	status, body = srv.do(t, http.MethodPut, "/api/tickets/"+id, "tech", map[string]any{"assigned_to": nil})
	if status != http.StatusOK {
		t.Fatalf("unassign: %d %v", status, body)
	}
	if got := dataOf(t, body); got["assigned_to"] != nil || got["status"] != "open" {
		t.Fatalf("unexpected unassignment %v", got)
	}

	status, body = srv.do(t, http.MethodPut, "/api/tickets/"+id, "alice", map[string]any{"priority": "critical"})
	if status != http.StatusForbidden {
		t.Fatalf("requester priority change: %d %v", status, body)
	}
}

func TestAuthAndRoleGuards(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Zoé", "email": "zoe@example.com", "password": "long-enough",
	})
	if status != http.StatusCreated {
		t.Fatalf("register: %d %v", status, body)
	}
	status, body = srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "zoe@example.com", "password": "wrong-password",
	})
	if status != http.StatusUnauthorized || errorCode(body) != "UNAUTHORIZED" {
		t.Fatalf("bad login: %d %v", status, body)
	}
	status, body = srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "zoe@example.com", "password": "long-enough",
	})
	if status != http.StatusOK {
		t.Fatalf("login: %d %v", status, body)
	}

	if status, _ := srv.do(t, http.MethodGet, "/api/tickets", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("anonymous list: %d", status)
	}
	if status, body := srv.do(t, http.MethodGet, "/api/auth/user", "alice", nil); status != http.StatusOK || dataOf(t, body)["email"] != "alice@example.com" {
		t.Fatalf("current user: %d %v", status, body)
	}

	cases := []struct {
		method, path, as string
		want             int
	}{
		{http.MethodGet, "/api/tickets/statistics-by-priority", "tech", http.StatusForbidden},
		{http.MethodGet, "/api/tickets/statistics-by-priority", "admin", http.StatusOK},
		{http.MethodGet, "/api/users", "tech", http.StatusForbidden},
		{http.MethodGet, "/api/users", "admin", http.StatusOK},
		{http.MethodGet, "/api/users/technicians", "alice", http.StatusForbidden},
		{http.MethodGet, "/api/users/technicians", "tech", http.StatusOK},
		{http.MethodDelete, "/api/users/id-admin", "admin", http.StatusConflict},
	}
	for _, tt := range cases {
		if status, body := srv.do(t, tt.method, tt.path, tt.as, nil); status != tt.want {
			t.Fatalf("%s %s as %s: got %d want %d (%v)", tt.method, tt.path, tt.as, status, tt.want, body)
		}
	}
}

func TestPreviewStatisticsAndProbes(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, http.MethodPost, "/api/tickets/preview-priority", "alice", map[string]any{
		"title": "Changement de fond d'écran", "description": "pas urgent du tout", "category": "other",
	})
	if status != http.StatusOK {
		t.Fatalf("preview: %d %v", status, body)
	}
	if got := dataOf(t, body); got["urgency"] != "low" {
		t.Fatalf("negated urgency expected low, got %v", got)
	}

	status, body = srv.do(t, http.MethodGet, "/api/tickets/statistics-by-priority", "admin", nil)
	if status != http.StatusOK {
		t.Fatalf("stats: %d %v", status, body)
	}
	stats := body["data"].([]any)
	if len(stats) != 4 || stats[0].(map[string]any)["priority"] != "critical" {
		t.Fatalf("unexpected stats %v", stats)
	}

	if status, _ := srv.do(t, http.MethodGet, "/health/live", "", nil); status != http.StatusOK {
		t.Fatalf("live: %d", status)
	}
	if status, body := srv.do(t, http.MethodGet, "/health/ready", "", nil); status != http.StatusOK {
		t.Fatalf("ready with disabled dependencies: %d %v", status, body)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "http_requests_total") {
		t.Fatalf("metrics exposition missing request counter: %d", resp.StatusCode)
	}
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)
	status, body := srv.do(t, http.MethodGet, "/nope", "", nil)
	if status != http.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Fatalf("unknown route: %d %v", status, body)
	}
}
