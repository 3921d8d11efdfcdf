// Package handlers contains reusable HTTP pieces of the progress API:
// health checks and request middleware.
//
// # Health Checks
//
// The HealthChecker interface runs named checks in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1")
//	checker.AddCheck("database", handlers.NewPingCheck(conn))
//	checker.AddCheck("cache", handlers.NewPingCheck(redisCache))
//
// # Authentication
//
// BearerAuth resolves the Authorization header to a learner ID through a
// LearnerResolver and stores it in the request context:
//
//	auth := handlers.NewBearerAuth(handlers.StaticTokens{"token-1": "learner-1"}, onError)
//	r.With(auth.Middleware).Get("/progress/summary", h)
//	learnerID, _ := handlers.LearnerIDFrom(r.Context())
package handlers
