//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/meyoo/platform/internal/database"
	"github.com/meyoo/platform/internal/identity"
	"github.com/meyoo/platform/internal/notify"
	"github.com/meyoo/platform/pkg/config"
	"github.com/meyoo/platform/pkg/util"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Create admin user; registration provisions a default organization
	jwtService := identity.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	reconciler := identity.NewReconciler(db, logger, cfg.Onboarding.SlugMaxAttempts, cfg.Onboarding.Steps)
	authService := identity.NewService(db, jwtService, reconciler,
		notify.NewMemoryCodeStore(), notify.NewLogSender(logger), nil, logger)

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	name := os.Getenv("ADMIN_NAME")

	if email == "" {
		email = "admin@example.com"
	}
	if password == "" {
		password = "admin123!"
	}
	if name == "" {
		name = "Admin"
	}

	resp, err := authService.Register(context.Background(), identity.RegisterInput{
		Email:    email,
		Password: password,
		Name:     name,
	})

	if err != nil {
		if errors.Is(err, identity.ErrUserExists) {
			fmt.Printf("Admin user already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create admin user: %v", err)
	}

	fmt.Printf("Admin user created successfully!\n")
	fmt.Printf("Email: %s\n", resp.User.Email)
	if resp.User.Organization != nil {
		fmt.Printf("Organization: %s\n", resp.User.Organization.Name)
	}
	fmt.Printf("Token: %s\n", resp.Token)
}
