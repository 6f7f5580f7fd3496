// Command provision-admin creates or refreshes the administrator account.
// It is idempotent: running it against a database that already has the
// account leaves the account in place, updating the password only when
// -reset-password is set.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/schedwise/timetable-api/internal/models"
	"github.com/schedwise/timetable-api/internal/repository"
	"github.com/schedwise/timetable-api/pkg/config"
	"github.com/schedwise/timetable-api/pkg/database"
)

func main() {
	username := flag.String("username", "admin", "administrator username")
	fullName := flag.String("name", "Administrator", "administrator display name")
	password := flag.String("password", "", "administrator password (falls back to ADMIN_PASSWORD)")
	resetPassword := flag.Bool("reset-password", false, "replace the password of an existing account")
	flag.Parse()

	if *password == "" {
		*password = os.Getenv("ADMIN_PASSWORD")
	}
	if *password == "" {
		log.Fatal("no password provided: use -password or set ADMIN_PASSWORD")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := repository.NewUserRepository(db)

	existing, err := users.FindByUsername(ctx, *username)
	switch {
	case err == nil:
		if !*resetPassword {
			log.Printf("account %q already provisioned (id=%d)", *username, existing.ID)
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}
		if err := users.UpdatePassword(ctx, existing.ID, string(hash)); err != nil {
			log.Fatalf("failed to update password: %v", err)
		}
		log.Printf("password reset for %q (id=%d)", *username, existing.ID)
	case errors.Is(err, sql.ErrNoRows):
		hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}
		admin := &models.User{
			Username:     *username,
			PasswordHash: string(hash),
			FullName:     *fullName,
			Role:         models.RoleAdmin,
			IsApproved:   true,
		}
		if err := users.Create(ctx, admin); err != nil {
			log.Fatalf("failed to create account: %v", err)
		}
		log.Printf("account %q provisioned (id=%d)", *username, admin.ID)
	default:
		log.Fatalf("failed to look up account: %v", err)
	}
}
