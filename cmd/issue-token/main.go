package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/cq-evaluator/internal/config"
	"github.com/stemsi/cq-evaluator/internal/database"
	"github.com/stemsi/cq-evaluator/internal/logger"
	"github.com/stemsi/cq-evaluator/internal/model"
	"github.com/stemsi/cq-evaluator/internal/repository"
	"github.com/stemsi/cq-evaluator/internal/service"
)

// issue-token prints a student JWT for an existing user, or creates the user
// first when no -user is given.
func main() {
	var (
		userFlag string
		ttl      time.Duration
	)
	flag.StringVar(&userFlag, "user", "", "Existing user id (omit to create a new user)")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	authService := service.NewAuthService(cfg)

	var user *model.User
	if userFlag != "" {
		id, err := uuid.Parse(userFlag)
		if err != nil {
			fmt.Println("Error: -user must be a UUID")
			return
		}
		user, err = userRepo.GetByID(ctx, id)
		if err != nil {
			log.Fatal().Err(err).Str("user_id", id.String()).Msg("Failed to load user")
		}
	} else {
		// ─── CLI Input ─────────────────────────────────────────────────
		reader := bufio.NewReader(os.Stdin)
		fmt.Println("=== Create New Student ===")
		fmt.Print("Enter Name: ")
		name, _ := reader.ReadString('\n')
		name = strings.TrimSpace(name)
		if name == "" {
			fmt.Println("Error: Name is required")
			return
		}

		user = &model.User{Name: name}
		if err := userRepo.Create(ctx, user); err != nil {
			log.Fatal().Err(err).Msg("Failed to create user")
		}
	}

	token, err := authService.IssueStudentToken(user.ID, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	fmt.Printf("\nStudent '%s' (%s), aura %d\n", user.Name, user.ID, user.Aura)
	fmt.Printf("Token (valid %s):\n%s\n", ttl, token)
}
