package main

import (
	"context"
	"log"
	"os"
	"time"

	"knova/internal/models"
	"knova/internal/repository"
	"knova/pkg/config"
	"knova/pkg/logger"
	"knova/pkg/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Seeds a demo account with a quota row and an empty knowledge base, so a
// fresh deployment can be exercised without going through registration.
// Running it twice is harmless.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	// Connect to database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	userRepo := repository.NewUserRepository(db, appLogger)
	quotaRepo := repository.NewQuotaRepository(db, appLogger)
	kbRepo := repository.NewKnowledgeBaseRepository(db, appLogger)

	email := envOr("SEED_EMAIL", "demo@knova.local")
	password := envOr("SEED_PASSWORD", "demo-password")

	if existing, _ := userRepo.GetByEmail(ctx, email); existing != nil {
		appLogger.Info("Demo user already exists, nothing to do", zap.String("email", email))
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		appLogger.Fatal("Failed to hash password", zap.Error(err))
	}

	now := time.Now()
	user := &models.User{
		ID:        uuid.New(),
		Username:  "demo",
		Email:     email,
		Password:  string(hashedPassword),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := userRepo.Create(ctx, user); err != nil {
		appLogger.Fatal("Failed to create demo user", zap.Error(err))
	}

	quota := &models.Quota{
		UserID:       user.ID,
		MonthlyQuota: cfg.Quota.DefaultMonthly,
		UsedQuota:    0,
		ResetDate:    firstOfNextMonth(now),
		UpdatedAt:    now,
	}
	if err := quotaRepo.Create(ctx, quota); err != nil {
		appLogger.Fatal("Failed to create demo quota", zap.Error(err))
	}

	kb := &models.KnowledgeBase{
		ID:          uuid.New(),
		UserID:      user.ID,
		Name:        "Getting started",
		Description: "Upload documents here to try retrieval and querying",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := kbRepo.Create(ctx, kb); err != nil {
		appLogger.Fatal("Failed to create demo knowledge base", zap.Error(err))
	}

	appLogger.Info("Seeding completed",
		zap.String("email", email),
		zap.String("kb_id", kb.ID.String()),
	)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func firstOfNextMonth(t time.Time) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
}
