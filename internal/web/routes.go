package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/gatekeeper/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	// Create handlers
	captureHandler := handlers.NewCaptureHandler(
		s.deps.Detector,
		s.deps.Identities,
		s.deps.Attendance,
		s.deps.Workflow,
		s.config.Gate.MatchThreshold,
	)
	identitiesHandler := handlers.NewIdentitiesHandler(s.deps.Detector, s.deps.Identities, s.config.Gate.EnrollmentPolicy)
	chatHandler := handlers.NewChatHandler(s.deps.Workflow)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Attendance, s.deps.Visitors)
	webhooksHandler := handlers.NewWebhooksHandler(s.deps.Hub)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Camera frames
		r.Post("/capture", captureHandler.Capture)

		// Gallery management
		r.Post("/identities", identitiesHandler.Enroll)
		r.Get("/identities", identitiesHandler.List)
		r.Delete("/identities/{name}", identitiesHandler.Remove)
		r.Put("/identities/{id}", identitiesHandler.Rename)

		// Visitor conversation
		r.Post("/chat", chatHandler.Message)
		r.Get("/chat/status", chatHandler.Status)

		// Ledger projections
		r.Get("/attendance/today", attendanceHandler.Today)
		r.Get("/attendance/recent", attendanceHandler.Recent)
		r.Get("/visitors/recent", attendanceHandler.RecentVisitors)
	})

	// Messaging provider callbacks (form-encoded, outside the JSON API)
	s.router.Post("/webhooks/whatsapp/reply", webhooksHandler.Reply)
	s.router.Post("/webhooks/whatsapp/status", webhooksHandler.DeliveryStatus)
}
