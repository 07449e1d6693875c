package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/student360/student360-backend/internal/config"
	"github.com/student360/student360-backend/internal/models"
)

// Bootstraps or resets a user account, typically the first admin.
func main() {
	var (
		email    = flag.String("email", "", "User email")
		password = flag.String("password", "", "User password")
		name     = flag.String("name", "", "Display name")
		role     = flag.String("role", models.RoleAdmin, "User role (admin, teacher, student)")
	)
	flag.Parse()

	if *email == "" || *password == "" || *name == "" {
		log.Fatal("email, password and name are required")
	}
	switch *role {
	case models.RoleAdmin, models.RoleTeacher, models.RoleStudent:
	default:
		log.Fatalf("invalid role %q", *role)
	}

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.Database, cfg.Database.SSLMode)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), 12)
	if err != nil {
		log.Fatal("Failed to generate password hash:", err)
	}

	userID := uuid.New()
	ctx := context.Background()

	query := `
		INSERT INTO users (id, name, email, password_hash, role, status, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (email) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	var resultID uuid.UUID
	err = db.GetContext(ctx, &resultID, query,
		userID, *name, *email, string(hash), *role, models.StatusActive, true, time.Now())
	if err != nil {
		log.Fatal("Failed to create user:", err)
	}

	if resultID == userID {
		fmt.Println("Created user:")
	} else {
		fmt.Println("Updated existing user:")
	}
	fmt.Printf("   Email: %s\n", *email)
	fmt.Printf("   Name:  %s\n", *name)
	fmt.Printf("   Role:  %s\n", *role)
	fmt.Printf("   ID:    %s\n", resultID)
}
