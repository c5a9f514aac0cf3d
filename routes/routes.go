package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shadowtips-backend/controllers"
	"shadowtips-backend/mailer"
	"shadowtips-backend/middlewares"
	"shadowtips-backend/suggest"
)

// Deps are the services handlers need beyond the database.
type Deps struct {
	Gateway  *suggest.Gateway
	Mailer   mailer.Mailer
	Registry *prometheus.Registry
}

// Register wires all HTTP routes.
func Register(app *fiber.App, deps Deps) {
	app.Get("/healthz", controllers.Healthz)
	if deps.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")

	// Public auth endpoints
	api.Post("/sign-up", controllers.SignUp(deps.Mailer))
	api.Post("/verify-code", controllers.VerifyCode)
	api.Get("/check-username-unique", controllers.CheckUsernameUnique)
	api.Post("/sign-in", controllers.SignIn)
	api.Post("/sign-out", controllers.SignOut)

	// Anonymous visitors
	api.Post("/suggest-messages", controllers.SuggestMessages(deps.Gateway))
	api.Post("/send-message", middlewares.Idempotency(), controllers.SendMessage)

	// Protected endpoints (JWT auth)
	protected := api.Group("")
	protected.Use(middlewares.IsAuthenticatedHeader())

	// Idempotency guard FIRST (not tied to request TX)
	protected.Use(middlewares.Idempotency())

	// Then the per-request transaction
	protected.Use(middlewares.Tx())

	protected.Get("/session", controllers.Session)
	protected.Get("/accept-messages", controllers.AcceptMessagesStatus)
	protected.Post("/accept-messages", controllers.UpdateAcceptMessages)
	protected.Get("/get-messages", controllers.GetMessages)
	protected.Delete("/delete-message/:messageid", controllers.DeleteMessage)
}
