package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/medichat/backend/internal/handler/chat"
	"github.com/zhouzirui/medichat/backend/internal/handler/stream"
	"github.com/zhouzirui/medichat/backend/internal/handler/summary"
	"github.com/zhouzirui/medichat/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/medichat/backend/internal/middleware"
	chatService "github.com/zhouzirui/medichat/backend/internal/service/chat"
	"github.com/zhouzirui/medichat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		chat.New(chatSvc, logger).RegisterRoutes(api)
		summary.New(chatSvc, logger).RegisterRoutes(api)

		// Streaming variants of /chat
		stream.New(chatSvc, logger).RegisterRoutes(api)
		ws.New(chatSvc, logger).RegisterRoutes(api)
	})

	return r
}
