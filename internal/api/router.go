package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Priya8975/keyword-alerts/internal/domain"
	"github.com/Priya8975/keyword-alerts/internal/engine"
	"github.com/Priya8975/keyword-alerts/internal/metrics"
	"github.com/Priya8975/keyword-alerts/internal/store"
	"github.com/Priya8975/keyword-alerts/internal/telegram"
	ws "github.com/Priya8975/keyword-alerts/internal/websocket"
	"github.com/Priya8975/keyword-alerts/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Store is the persistence used by the HTTP surface.
type Store interface {
	Stats(ctx context.Context) (*store.Stats, error)
	ListSubscribers(ctx context.Context, includeKeywords bool) ([]domain.Subscriber, error)
	GetSubscriberByAddress(ctx context.Context, address string) (*domain.Subscriber, error)
	RemoveSubscriber(ctx context.Context, address string) (bool, error)
	ListGroups(ctx context.Context) ([]domain.Group, error)
	GetGroup(ctx context.Context, groupID string) (*domain.Group, error)
	AddGroup(ctx context.Context, groupID, name, inviteLink string) (int64, error)
	ListOrphanedGroups(ctx context.Context) ([]domain.Group, error)
	ListProcessedPosts(ctx context.Context, limit int) ([]domain.ProcessedPost, error)
	SnapshotBackup(ctx context.Context) (string, error)
	ListSnapshots() ([]store.Snapshot, error)
	SnapshotPath(name string) string
	RestoreFromSnapshot(ctx context.Context, path string) error
}

// PostProcessor fans a post out to the matching groups.
type PostProcessor interface {
	Process(ctx context.Context, post domain.Post) (*engine.Result, error)
}

// UpdateHandler consumes Telegram updates.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

// GroupProcessor reconciles one group on demand.
type GroupProcessor interface {
	ProcessGroup(ctx context.Context, groupID string, force bool) error
}

// Deps wires the router. Hub, Metrics and Announcer may be nil.
type Deps struct {
	Store     Store
	Posts     PostProcessor
	Updates   UpdateHandler
	Groups    GroupProcessor
	Announcer worker.AnnouncementSender
	Hub       *ws.Hub
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// AdminToken protects /api/v1/admin; empty disables the admin API.
	AdminToken string
	// WebhookSecret is compared to Telegram's secret token header when set.
	WebhookSecret    string
	BroadcastWorkers int
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	if d.Metrics != nil {
		r.Use(metricsMiddleware(d.Metrics))
		r.Handle("/metrics", d.Metrics.Handler())
	}

	webhook := NewWebhookHandler(d.Posts, d.Updates, d.Metrics, d.Logger, d.WebhookSecret)
	admin := NewAdminHandler(d.Store, d.Groups, d.Announcer, d.Metrics, d.Logger, d.BroadcastWorkers)

	r.Post("/webhook", webhook.ServeHTTP)
	if d.Hub != nil {
		r.Get("/ws", d.Hub.HandleWebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(d.Store))

		r.Route("/admin", func(r chi.Router) {
			r.Use(bearerAuth(d.AdminToken))

			r.Get("/stats", admin.Stats)

			r.Route("/subscribers", func(r chi.Router) {
				r.Get("/", admin.ListSubscribers)
				r.Get("/{address}", admin.GetSubscriber)
				r.Delete("/{address}", admin.RemoveSubscriber)
			})

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", admin.ListGroups)
				r.Post("/", admin.CreateGroup)
				r.Get("/orphaned", admin.OrphanedGroups)
				r.Post("/{groupID}/process", admin.ProcessGroup)
			})

			r.Route("/backups", func(r chi.Router) {
				r.Get("/", admin.ListBackups)
				r.Post("/", admin.CreateBackup)
				r.Post("/{name}/restore", admin.RestoreBackup)
			})

			r.Get("/posts", admin.ListPosts)
			r.Post("/broadcast", admin.Broadcast)
		})
	})

	return r
}
