// cmd/devtoken/main.go issues identity tokens for local development and can
// grant a role in the profiles table.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/config"
	"github.com/your-org/storefront-engine/internal/domain/access"
	"github.com/your-org/storefront-engine/internal/infrastructure/database/postgres"
	"github.com/your-org/storefront-engine/internal/pkg/auth"
	"github.com/your-org/storefront-engine/internal/pkg/logger"
)

func main() {
	userID := flag.String("user", "", "user id (uuid); a new one is generated when empty")
	email := flag.String("email", "", "email claim")
	role := flag.String("role", "", "grant this role (user or admin) in the database")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logger.New(cfg.Logging)

	if *userID == "" {
		*userID = uuid.NewString()
	}

	if *role != "" {
		r := access.Role(*role)
		if r != access.RoleUser && r != access.RoleAdmin {
			log.Fatalf("Unknown role %q", *role)
		}
		conn, err := postgres.NewConnection(cfg, log)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := postgres.NewStore(conn.GetDB()).SetRole(ctx, *userID, r); err != nil {
			log.Fatalf("Failed to grant role: %v", err)
		}
		log.WithFields(logrus.Fields{"user_id": *userID, "role": r}).Info("✅ Role granted")
	}

	token, err := auth.NewJWTManager(cfg.JWT).Issue(*userID, *email)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Printf("User:  %s\n", *userID)
	fmt.Printf("Token: %s\n", token)
}
