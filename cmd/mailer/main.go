// Command mailer delivers the e-mails the API queues when MAIL_TRANSPORT=queue.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"picshare/internal/modules/auth"
	"picshare/internal/pkg/logger"
	"picshare/internal/queue"
)

func main() {
	_ = godotenv.Load()

	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		log.Fatal("RABBITMQ_URL is required")
	}
	apiKey := os.Getenv("RESEND_API_KEY")
	if apiKey == "" {
		log.Fatal("RESEND_API_KEY is required")
	}

	l := logger.New(logger.Config{
		Service: "picshare-mailer",
		Env:     os.Getenv("APP_ENV"),
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  os.Getenv("LOG_FORMAT"),
	})

	mailer := auth.NewResendMailer(
		envOr("RESEND_API_URL", "https://api.resend.com/emails"),
		apiKey,
		envOr("EMAIL_FROM_NAME", "Picshare"),
		envOr("EMAIL_FROM", "no-reply@picshare.local"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := queue.NewConsumer(url, envOr("RABBITMQ_EMAIL_QUEUE", "email.send"), deliver(mailer), queue.ConsumerOptions{Logger: l})
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.Error("mailer stopped", "err", err)
		os.Exit(1)
	}
	l.Info("mailer stopped")
}

func deliver(m auth.Mailer) queue.Handler {
	return func(ctx context.Context, body []byte) error {
		var msg auth.Email
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("decode email job: %w", err)
		}
		if msg.To == "" {
			return errors.New("email job without recipient")
		}
		if err := m.Send(ctx, msg); err != nil {
			return err
		}
		logger.FromContext(ctx).Info("email sent", "to", msg.To, "subject", msg.Subject)
		return nil
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
