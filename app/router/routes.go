// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/amirphl/Yamata-WABA/app/dto"
	"github.com/amirphl/Yamata-WABA/app/handlers"
	"github.com/amirphl/Yamata-WABA/app/middleware"
	"github.com/amirphl/Yamata-WABA/config"
	"github.com/amirphl/Yamata-WABA/docs"
	"github.com/amirphl/Yamata-WABA/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggo/swag"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app *fiber.App
	cfg *config.ProductionConfig

	mappingHandler     handlers.VariableMappingHandlerInterface
	materializeHandler handlers.MaterializeHandlerInterface
	planHandler        handlers.DispatchPlanHandlerInterface
	jobHandler         handlers.OutboundJobHandlerInterface
	billingHandler     handlers.BillingHandlerInterface
	webhookHandler     handlers.WebhookHandlerInterface
	authMiddleware     *middleware.AuthMiddleware
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	mappingHandler handlers.VariableMappingHandlerInterface,
	materializeHandler handlers.MaterializeHandlerInterface,
	planHandler handlers.DispatchPlanHandlerInterface,
	jobHandler handlers.OutboundJobHandlerInterface,
	billingHandler handlers.BillingHandlerInterface,
	webhookHandler handlers.WebhookHandlerInterface,
	authMiddleware *middleware.AuthMiddleware,
) Router {
	bodyLimit := cfg.Server.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 4 * 1024 * 1024
	}

	app := fiber.New(fiber.Config{
		AppName:      "Yamata WABA API",
		ServerHeader: "Yamata-WABA",
		ErrorHandler: errorHandler,
		BodyLimit:    bodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:                app,
		cfg:                cfg,
		mappingHandler:     mappingHandler,
		materializeHandler: materializeHandler,
		planHandler:        planHandler,
		jobHandler:         jobHandler,
		billingHandler:     billingHandler,
		webhookHandler:     webhookHandler,
		authMiddleware:     authMiddleware,
	}
}

func rateLimitReached(c fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
		Success: false,
		Message: "Too many requests. Please try again later.",
		Error: dto.ErrorDetail{
			Code: "RATE_LIMIT_EXCEEDED",
		},
	})
}

func (r *FiberRouter) rateLimit(perWindow int) fiber.Handler {
	window := r.cfg.Security.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        max(perWindow, 1),
		Expiration: window,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: rateLimitReached,
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	})
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		path := r.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")

	api.Get("/health", r.healthCheck)

	env := r.cfg.Deployment.Environment
	if env == "development" || env == "local" {
		api.Get("/swagger.json", r.serveSwaggerJSON)
		log.Println("API documentation enabled for development")
	}

	// Provider callbacks authenticate by signature, not JWT
	webhooks := api.Group("/webhooks", r.rateLimit(r.cfg.Security.WebhookRateLimit))
	webhooks.Get("/whatsapp/:business_id", r.webhookHandler.Verify)
	webhooks.Post("/whatsapp/:business_id", r.webhookHandler.Receive)

	limit := r.rateLimit(r.cfg.Security.GlobalRateLimit)
	auth := r.authMiddleware.Authenticate()

	campaigns := api.Group("/campaigns/:id", limit, auth)
	campaigns.Get("/variable-mappings", r.mappingHandler.GetMappings)
	campaigns.Put("/variable-mappings", r.mappingHandler.SaveMappings)
	campaigns.Post("/recipients/materialize", r.materializeHandler.Materialize)
	campaigns.Get("/dispatch-plan", r.planHandler.GetPlan)
	campaigns.Get("/dispatch-plan/export", r.planHandler.ExportPlan)
	campaigns.Post("/jobs", r.jobHandler.Enqueue)
	campaigns.Get("/jobs", r.jobHandler.ListJobs)

	jobs := api.Group("/jobs/:job_uuid", limit, auth)
	jobs.Get("", r.jobHandler.GetJob)
	jobs.Post("/retry", r.jobHandler.Retry)
	jobs.Post("/cancel", r.jobHandler.Cancel)

	api.Get("/billing/snapshot", limit, auth, r.billingHandler.GetSnapshot)

	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: generateRequestID,
	}))

	if r.cfg.Server.EnableMetrics {
		scrape := r.cfg.Metrics.Path
		if scrape == "" {
			scrape = "/metrics"
		}
		r.app.Use(middleware.Metrics(scrape))
	}

	xFrame := r.cfg.Security.XFrameOptions
	if xFrame == "" {
		xFrame = "DENY"
	}
	referrer := r.cfg.Security.ReferrerPolicy
	if referrer == "" {
		referrer = "strict-origin-when-cross-origin"
	}
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             xFrame,
		HSTSMaxAge:                31536000,
		ContentSecurityPolicy:     "default-src 'self'; frame-ancestors 'none';",
		ReferrerPolicy:            referrer,
		CrossOriginResourcePolicy: "cross-origin",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	// wildcard origins cannot carry credentials
	allowCredentials := r.cfg.Security.AllowCredentials && len(r.cfg.Security.AllowedOrigins) > 0
	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     r.cfg.Security.AllowedHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: allowCredentials,
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
			Next: func(c fiber.Ctx) bool {
				// xlsx exports are already zipped
				return strings.HasSuffix(c.Path(), "/dispatch-plan/export")
			},
		}))
	}

	if r.cfg.Logging.EnableAccessLog {
		r.app.Use(logger.New(logger.Config{
			Format:     `{"time":"${time}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
			TimeFormat: time.RFC3339,
			TimeZone:   "UTC",
			Next: func(c fiber.Ctx) bool {
				return c.Path() == "/api/v1/health"
			},
		}))
	}

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%v","event":"panic","error":"%v","path":"%s","method":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
			)
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"version":   r.cfg.Deployment.Version,
			"service":   "yamata-waba-api",
		},
	})
}

func (r *FiberRouter) serveSwaggerJSON(c fiber.Ctx) error {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
			Success: false,
			Message: "Failed to load Swagger documentation",
			Error: dto.ErrorDetail{
				Code: "SWAGGER_LOAD_ERROR",
			},
		})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.SendString(doc)
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": c.Locals("requestid"),
			},
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errCode := "INTERNAL_ERROR"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if code < fiber.StatusInternalServerError {
			message = e.Message
			errCode = "REQUEST_ERROR"
		}
	}

	log.Printf("Error %d: %v", code, err)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": c.Locals("requestid"),
			},
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
