// @title           Civic Grievance Portal API
// @version         1.0
// @description     Citizens file and upvote grievances, staff assign and resolve them, and the public sees resolution, SLA and budget transparency reports.
// @contact.name    Aldo Rifki Putra
// @contact.email   aldoetobex@gmail.com
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aldoetobex/civic-grievance-backend/internal/admin"
	"github.com/aldoetobex/civic-grievance-backend/internal/auth"
	"github.com/aldoetobex/civic-grievance-backend/internal/budget"
	"github.com/aldoetobex/civic-grievance-backend/internal/grievances"
	"github.com/aldoetobex/civic-grievance-backend/internal/lifecycle"
	"github.com/aldoetobex/civic-grievance-backend/internal/notify"
	"github.com/aldoetobex/civic-grievance-backend/internal/otp"
	"github.com/aldoetobex/civic-grievance-backend/internal/storage"
	"github.com/aldoetobex/civic-grievance-backend/internal/transparency"
	"github.com/aldoetobex/civic-grievance-backend/pkg/config"
	"github.com/aldoetobex/civic-grievance-backend/pkg/database"
	"github.com/aldoetobex/civic-grievance-backend/pkg/logger"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
)

func main() {
	cfg, err := config.Load()
	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.AppEnv,
		ServiceName: "civic-grievance-api",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	auth.SetSecret(cfg.JWTSecret)

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	rewrites, err := database.MigrateLegacyCategories(db, false)
	if err != nil {
		log.Fatal().Err(err).Msg("legacy category migration failed")
	}
	if len(rewrites) > 0 {
		log.Info().Int("groups", len(rewrites)).Msg("legacy categories migrated")
	}

	rdb := openRedis(cfg, log)
	defer rdb.Close()

	pub, err := notify.Connect(cfg.NatsURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connection failed")
	}
	defer pub.Close()

	// Left nil (not a typed nil) when storage is not configured.
	var store storage.ObjectStore
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" && cfg.SupabaseBucket != "" {
		store = storage.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
	} else {
		log.Warn().Msg("Supabase storage not configured; attachments are disabled")
	}

	engine := lifecycle.New(nil)

	app := fiber.New(fiber.Config{
		AppName:      "civic-grievance-api",
		ErrorHandler: auth.ErrorHandler(log),
		BodyLimit:    105 * 1024 * 1024, // ten 10MB attachments plus form fields
	})
	app.Use(recover.New())
	app.Use(logger.Middleware(log))

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	api := app.Group("/api")
	requireAdmin := auth.RequireRole(models.AdminRoles...)
	requireStaff := auth.RequireRole(models.StaffRoles...)

	// Auth
	authH := auth.NewHandler(db, log)
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/login", authH.Login)
	api.Post("/auth/logout", authH.Logout)
	api.Get("/auth/me", auth.RequireAuth(), authH.Me)

	otpH := otp.NewHandler(
		db,
		otp.NewRedisStore(rdb, cfg.OTPTTL, cfg.OTPMaxAttempts),
		otp.LogSender{Log: log, ShowCode: cfg.IsDev()},
		cfg.OTPTTL,
		cfg.IsDev(),
		log,
	)
	api.Post("/auth/send-otp", otpH.SendOTP)
	api.Post("/auth/verify-otp", otpH.VerifyOTP)
	api.Post("/auth/forgot-password", otpH.ForgotPassword)
	api.Post("/auth/verify-reset-otp", otpH.VerifyResetOTP)
	api.Post("/auth/reset-password", otpH.ResetPassword)

	// Grievances. Static paths are registered before /:id.
	gH := grievances.NewHandler(db, store, engine, pub, log)
	api.Get("/grievances/all", gH.ListAll)
	api.Post("/grievances/cancel-request", auth.RequireAuth(), gH.CancelRequest)
	api.Post("/grievances", auth.RequireAuth(), gH.Create)
	api.Get("/grievances", auth.RequireAuth(), gH.ListMine)
	api.Get("/grievances/:id", auth.RequireAuth(), gH.Get)
	api.Put("/grievances/:id", auth.RequireAuth(), gH.Update)
	api.Delete("/grievances/:id", auth.RequireAuth(), auth.RequireRole(models.RoleAdmin), gH.Delete)
	api.Post("/grievances/:id/upvote", auth.RequireAuth(), gH.Upvote)
	api.Post("/grievances/:id/comment", auth.RequireAuth(), gH.Comment)
	api.Post("/grievances/:id/files", auth.RequireAuth(), gH.UploadFiles)
	api.Get("/files/:fileID/signed-url", auth.RequireAuth(), gH.SignedDownloadURL)

	// Transparency (public)
	tH := transparency.NewHandler(db, engine, log)
	tr := api.Group("/transparency")
	tr.Get("/report", tH.Report)
	tr.Get("/overdue", tH.Overdue)
	tr.Get("/categories", tH.Categories)
	tr.Get("/trends", tH.Trends)
	tr.Get("/officers", tH.Officers)
	tr.Get("/budget", tH.Budget)
	tr.Get("/export", tH.Export)
	tr.Get("/issue/:id", tH.Issue)
	tr.Post("/upvote/:id", auth.RequireAuth(), gH.Upvote)

	// Admin
	aH := admin.NewHandler(db, engine, pub, log)
	adm := api.Group("/admin", auth.RequireAuth(), requireAdmin)
	adm.Get("/dashboard", aH.Dashboard)
	adm.Get("/users", aH.Users)
	adm.Get("/grievances", aH.Grievances)
	adm.Post("/assign-grievance", aH.AssignGrievance)
	adm.Put("/user-role", aH.UpdateUserRole)
	adm.Post("/cancellations/:id/decision", aH.DecideCancellation)

	// Budget
	bH := budget.NewHandler(db, engine, log)
	api.Get("/budget/overview", bH.Overview)
	api.Get("/budget/trends", bH.Trends)
	api.Put("/budget/:id", auth.RequireAuth(), requireStaff, bH.UpdateBudget)
	api.Post("/budget/:id/expense", auth.RequireAuth(), requireStaff, bH.AddExpense)

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Msg("server running")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// openRedis parses REDIS_URL and checks the connection. An unreachable Redis
// only disables OTP flows, so it is logged rather than fatal.
func openRedis(cfg config.Config, log zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable; OTP endpoints will fail until it is back")
	}
	return rdb
}
