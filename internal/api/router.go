package api

import (
	"knova/internal/api/handlers"
	"knova/pkg/auth"
	"knova/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func SetupRouter(
	authHandler *handlers.AuthHandler,
	knowledgeHandler *handlers.KnowledgeHandler,
	docHandler *handlers.DocumentHandler,
	queryHandler *handlers.QueryHandler,
	quotaHandler *handlers.QuotaHandler,
	eventsHandler *handlers.EventsHandler,
	jwtManager *auth.JWTManager,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: 64 << 20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Auth routes (public)
	authGroup := app.Group("/user/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.RefreshToken)

	// Protected routes
	protected := app.Group("/api/v1", middleware.AuthMiddleware(jwtManager, appLogger))

	// Knowledge base routes
	bases := protected.Group("/knowledge-bases")
	bases.Post("", knowledgeHandler.Create)
	bases.Get("", knowledgeHandler.List)
	bases.Get("/:id", knowledgeHandler.Get)
	bases.Delete("/:id", knowledgeHandler.Delete)
	bases.Post("/:id/documents", docHandler.Upload)
	bases.Get("/:id/documents", docHandler.List)

	// Document routes
	documents := protected.Group("/documents")
	documents.Get("/:id", docHandler.Get)
	documents.Post("/:id/retry", docHandler.Retry)
	documents.Delete("/:id", docHandler.Delete)

	// Query routes
	protected.Post("/query", queryHandler.Query)
	protected.Post("/query/stream", queryHandler.StreamQuery)

	// Account routes
	protected.Get("/quota", quotaHandler.Get)
	protected.Get("/events", eventsHandler.Stream)

	return app
}
