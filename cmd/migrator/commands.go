package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/caarlos0/env/v10"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pigi/quizmaster/db"
	"github.com/pigi/quizmaster/internal/auth"
	"github.com/pigi/quizmaster/internal/config"
	"github.com/pigi/quizmaster/internal/db/repository"
	"github.com/pigi/quizmaster/internal/quiz"
)

const migrationsDir = "migrations"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "migrator",
		Short:         "Database migrations and fixtures for quizmaster",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newGooseCmd("up", "Apply all pending migrations", goose.UpContext),
		newGooseCmd("down", "Roll back the latest migration", goose.DownContext),
		newGooseCmd("status", "Print migration status", goose.StatusContext),
		newSeedCmd(),
		newHashPasswordCmd(),
	)
	return cmd
}

func newGooseCmd(use, short string, run func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			goose.SetBaseFS(db.Migrations)
			goose.SetTableName("goose_db_version")
			if err := goose.SetDialect("postgres"); err != nil {
				return err
			}
			if err := run(cmd.Context(), conn, migrationsDir); err != nil {
				return fmt.Errorf("goose %s: %w", use, err)
			}
			log.Info().Str("command", use).Msg("migration command finished")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Upsert quizzes from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quizzes, err := quiz.LoadFile(args[0])
			if err != nil {
				return err
			}
			pg, err := postgresConfig()
			if err != nil {
				return err
			}
			conn, err := pgx.Connect(cmd.Context(), pg.ConnString())
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer conn.Close(context.Background())

			repo := repository.NewQuizRepository(conn)
			for _, q := range quizzes {
				if err := repo.Upsert(cmd.Context(), q); err != nil {
					return err
				}
				log.Info().Str("quiz_id", q.ID).Int("questions", len(q.Questions)).Msg("quiz upserted")
			}
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return hashPassword(cmd.OutOrStdout(), args[0])
		},
	}
}

func hashPassword(out io.Writer, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

func postgresConfig() (config.Postgres, error) {
	var pg config.Postgres
	if err := env.Parse(&pg); err != nil {
		return pg, fmt.Errorf("parse postgres config: %w", err)
	}
	if !pg.Enabled() || pg.User == "" || pg.Database == "" {
		return pg, errors.New("PG_HOST, PG_USER and PG_DATABASE are required")
	}
	return pg, nil
}

func openDB(ctx context.Context) (*sql.DB, error) {
	pg, err := postgresConfig()
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open("pgx", pg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info().Str("host", pg.Host).Int("port", pg.Port).Str("database", pg.Database).Msg("connected to database")
	return conn, nil
}
