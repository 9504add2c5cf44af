package main

import (
	"context"
	"encoding/base64"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"picshare/internal/database"
	"picshare/internal/domain"
	"picshare/internal/modules/auth"
	"picshare/internal/modules/notification"
	"picshare/internal/modules/post"
	"picshare/internal/repository"
	"picshare/internal/storage"
)

// 1x1 transparent PNG.
var pixel = "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
})

type seedUser struct {
	username string
	email    string
	role     domain.UserRole
}

var users = []seedUser{
	{"admin", "admin@picshare.local", domain.RoleAdmin},
	{"asel", "asel@picshare.local", domain.RoleUser},
	{"bekzat", "bekzat@picshare.local", domain.RoleUser},
	{"dina", "dina@picshare.local", domain.RoleUser},
}

var prompts = []string{
	"a lighthouse in a storm, oil painting",
	"neon city street after rain",
	"a red fox sleeping in fresh snow",
	"astronaut reading a book on the moon",
	"watercolor mountains at sunrise",
	"a cat wearing a tiny wizard hat",
}

type noPush struct{}

func (noPush) Push(int64, any) int { return 0 }

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "picshare.db"
	}
	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("migrate failed:", err)
	}

	log.Println("Cleaning old data...")
	if err := clean(db); err != nil {
		log.Fatal("cleanup failed:", err)
	}

	ctx := context.Background()
	hasher, err := auth.NewPasswordHasher(10, 0)
	if err != nil {
		log.Fatal(err)
	}
	hash, err := hasher.Hash(ctx, "Secret123!")
	if err != nil {
		log.Fatal(err)
	}

	userRepo := repository.NewUserRepository(db)
	profiles := make([]domain.Profile, 0, len(users))
	for _, su := range users {
		u := &domain.User{Username: su.username, Email: su.email, PasswordHash: hash, Role: su.role}
		if err := userRepo.Create(ctx, u); err != nil {
			log.Fatalf("create user %s: %v", su.username, err)
		}
		profiles = append(profiles, u.Profile())
		log.Printf("User created: %s / Secret123!", su.email)
	}

	posts := post.NewService(
		repository.NewPostRepository(db),
		storage.InlineStore{},
		notification.NewDispatcher(repository.NewNotificationRepository(db), noPush{}),
	)

	var created []int64
	for i, prompt := range prompts {
		author := profiles[1+i%(len(profiles)-1)]
		v, err := posts.Create(ctx, author, prompt, pixel)
		if err != nil {
			log.Fatalf("create post: %v", err)
		}
		created = append(created, v.ID)
	}
	log.Printf("Posts created: %d", len(created))

	likes := 0
	for i, postID := range created {
		for j, p := range profiles[1:] {
			if (i+j)%2 != 0 {
				continue
			}
			if _, err := posts.ToggleLike(ctx, p, postID); err != nil {
				log.Fatalf("like post %d: %v", postID, err)
			}
			likes++
		}
	}
	log.Printf("Likes created: %d", likes)
	log.Println("Seed completed")
}

func clean(db *gorm.DB) error {
	for _, table := range []string{"notifications", "post_likes", "posts", "refresh_tokens", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}
	return nil
}
