package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"picshare/internal/database"
	"picshare/internal/repository"
)

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := database.Connect(databaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := repository.NewRefreshTokenRepository(db).DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		log.Fatalf("cleanup refresh_tokens failed: %v", err)
	}

	log.Printf("auth cleanup completed: refresh_tokens=%d", n)
}
