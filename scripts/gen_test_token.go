//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"codeberg.org/tinyurl/server/internal/auth"
	"codeberg.org/tinyurl/server/tinyurl/users"
)

func main() {
	// load environment
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	ctx := context.Background()

	dbPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	email := "test@tinyurl.local"
	if len(os.Args) > 1 {
		email = os.Args[1]
	}

	user, err := users.NewRepository(dbPool).FindOrCreateByEmail(ctx, email, "Test User")
	if err != nil {
		log.Fatalf("Failed to find or create test user: %v", err)
	}

	fmt.Printf("Using test user %s (ID: %d)\n", user.Email, user.ID)

	token, err := auth.GenerateJWT(user.ID, user.Email)
	if err != nil {
		log.Fatalf("Failed to generate JWT: %v", err)
	}

	fmt.Printf("\nTest JWT Token:\n%s\n\n", token)
	fmt.Printf("Export this token for testing:\nexport TEST_TOKEN=\"%s\"\n", token)
}
