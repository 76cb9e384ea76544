// Package main is the staff account and token tool for desk operators.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/auth"
	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/pkg/database"
	"github.com/infest-events/registration/pkg/utils"
)

var flagJWTSecret = &cli.StringFlag{
	Name:     "jwt-secret",
	EnvVars:  []string{"JWT_SECRET"},
	Usage:    "HMAC secret the server validates staff tokens with",
	Required: true,
}

var flagUsername = &cli.StringFlag{
	Name:     "username",
	Usage:    "Staff username",
	Required: true,
}

var flagRole = &cli.StringFlag{
	Name:  "role",
	Value: string(models.RoleStaff),
	Usage: "staff or admin",
}

var flagTTL = &cli.DurationFlag{
	Name:  "ttl",
	Value: 12 * time.Hour,
	Usage: "Token lifetime",
}

var flagStaffID = &cli.StringFlag{
	Name:  "staff-id",
	Usage: "Staff UUID embedded in the token (random when empty)",
}

var flagPassword = &cli.StringFlag{
	Name:     "password",
	EnvVars:  []string{"STAFF_PASSWORD"},
	Usage:    "Plain-text password",
	Required: true,
}

var flagFullName = &cli.StringFlag{
	Name:  "full-name",
	Usage: "Display name shown on the desk",
}

var flagDatabaseURL = &cli.StringFlag{
	Name:     "database-url",
	EnvVars:  []string{"DATABASE_URL"},
	Usage:    "PostgreSQL connection string",
	Required: true,
}

func main() {
	app := &cli.App{
		Name:  "tokengen",
		Usage: "manage check-in desk staff",
		Commands: []*cli.Command{
			{
				Name:  "mint",
				Usage: "issue a staff JWT without a login round-trip",
				Flags: []cli.Flag{flagJWTSecret, flagUsername, flagRole, flagTTL, flagStaffID},
				Action: func(cCtx *cli.Context) error {
					role, err := parseRole(cCtx.String(flagRole.Name))
					if err != nil {
						return err
					}
					staffID := uuid.New()
					if raw := cCtx.String(flagStaffID.Name); raw != "" {
						if staffID, err = uuid.Parse(raw); err != nil {
							return fmt.Errorf("invalid staff id: %w", err)
						}
					}
					jwtService := auth.NewJWTService(cCtx.String(flagJWTSecret.Name), 0)
					token, err := jwtService.GenerateTTL(staffID, strings.ToLower(cCtx.String(flagUsername.Name)), string(role), cCtx.Duration(flagTTL.Name))
					if err != nil {
						return err
					}
					fmt.Println(token)
					return nil
				},
			},
			{
				Name:  "hash-password",
				Usage: "print a bcrypt hash for STAFF_PASSWORD_HASH",
				Flags: []cli.Flag{flagPassword},
				Action: func(cCtx *cli.Context) error {
					hash, err := utils.HashPassword(cCtx.String(flagPassword.Name))
					if err != nil {
						return err
					}
					fmt.Println(hash)
					return nil
				},
			},
			{
				Name:  "add-staff",
				Usage: "create or update a staff account",
				Flags: []cli.Flag{flagDatabaseURL, flagUsername, flagPassword, flagFullName, flagRole},
				Action: func(cCtx *cli.Context) error {
					role, err := parseRole(cCtx.String(flagRole.Name))
					if err != nil {
						return err
					}
					hash, err := utils.HashPassword(cCtx.String(flagPassword.Name))
					if err != nil {
						return err
					}

					ctx, cancel := context.WithTimeout(cCtx.Context, 30*time.Second)
					defer cancel()
					logger := zap.NewNop()
					pool, err := database.NewPostgresPool(ctx, database.PoolConfig{DSN: cCtx.String(flagDatabaseURL.Name)}, logger)
					if err != nil {
						return err
					}
					defer pool.Close()
					if err := database.Migrate(ctx, pool, logger); err != nil {
						return err
					}

					staff, err := auth.NewRepository(pool).Upsert(ctx,
						strings.ToLower(cCtx.String(flagUsername.Name)), hash, cCtx.String(flagFullName.Name), role)
					if err != nil {
						return err
					}
					fmt.Printf("%s\t%s\t%s\n", staff.ID, staff.Username, staff.Role)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func parseRole(raw string) (models.Role, error) {
	role := models.Role(strings.ToLower(raw))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}
