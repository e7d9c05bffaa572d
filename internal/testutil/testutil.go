// Package testutil holds the Postgres and Fiber helpers shared by handler tests.
package testutil

import (
	"os"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aldoetobex/civic-grievance-backend/internal/auth"
	"github.com/aldoetobex/civic-grievance-backend/pkg/database"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
)

// OpenTestDB connects to TEST_DATABASE_URL, migrates, and truncates all
// tables after the test. Tests are skipped when the variable is unset.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	_ = godotenv.Load()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is empty")
	}
	db, err := database.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Truncate AFTER each test (data survives within a single test).
	t.Cleanup(func() {
		sql := `
TRUNCATE TABLE
	grievance_histories,
	grievance_comments,
	grievance_files,
	grievances,
	users
RESTART IDENTITY CASCADE`
		if err := db.Exec(sql).Error; err != nil {
			t.Logf("truncate failed (ignored): %v", err)
		}
	})
	return db
}

// WithTx runs fn in a transaction that is committed at the end.
// A panic rolls back and is rethrown.
func WithTx(t *testing.T, db *gorm.DB, fn func(tx *gorm.DB)) {
	t.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		t.Fatalf("begin tx: %v", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	fn(tx)
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit tx: %v", err)
	}
}

// InjectAuth sets the locals RequireAuth would set, without a JWT.
func InjectAuth(userID uuid.UUID, role models.Role) fiber.Handler {
	id := userID.String()
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		c.Locals("role", string(role))
		return c.Next()
	}
}

// NewApp returns a Fiber app with the production error handler and,
// when userID is not Nil, injected auth locals.
func NewApp(userID uuid.UUID, role models.Role) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(zerolog.Nop())})
	if userID != uuid.Nil {
		app.Use(InjectAuth(userID, role))
	}
	return app
}

// SeedUser inserts an active user with the given role.
func SeedUser(t *testing.T, db *gorm.DB, role models.Role) models.User {
	t.Helper()
	id := uuid.New()
	u := models.User{
		ID:       id,
		Email:    string(role) + "_" + id.String()[:8] + "@x.com",
		Name:     string(role) + " " + id.String()[:4],
		Role:     role,
		IsActive: true,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	return u
}

// SeedGrievance inserts g after filling defaults for required fields.
func SeedGrievance(t *testing.T, db *gorm.DB, g models.Grievance) models.Grievance {
	t.Helper()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.Title == "" {
		g.Title = "Grievance " + g.ID.String()[:6]
	}
	if g.Description == "" {
		g.Description = "Broken streetlight near the market"
	}
	if g.Category == "" {
		g.Category = models.CategoryElectric
	}
	if g.Priority == "" {
		g.Priority = models.PriorityMedium
	}
	if g.Status == "" {
		g.Status = models.StatusOpen
	}
	if err := db.Create(&g).Error; err != nil {
		t.Fatal(err)
	}
	return g
}
