// Command authctl is the operator CLI: it runs schema migrations and creates
// admin accounts against whatever store STORE_DRIVER points at.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/geocoder89/authhub/internal/account"
	"github.com/geocoder89/authhub/internal/bootstrap"
	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/db"
	"github.com/geocoder89/authhub/internal/security"
	"golang.org/x/term"
)

// swapped out in tests so nothing touches the terminal or a real database
var (
	readPassword = term.ReadPassword
	openStore    = bootstrap.OpenStore
)

const usage = `usage: authctl <command> [flags]

commands:
  migrate                  apply database migrations (postgres only)
  create-admin -email E    create an admin account, or grant admin to an existing one
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], config.Load(), os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, cfg config.Config, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, w := range warnings {
		fmt.Fprintln(stderr, "warning:", w)
	}

	switch args[0] {
	case "migrate":
		return runMigrate(ctx, cfg, stdout)
	case "create-admin":
		return runCreateAdmin(ctx, args[1:], cfg, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runMigrate(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	if cfg.StoreDriver != config.StorePostgres {
		fmt.Fprintf(stdout, "store %q has no schema, nothing to migrate\n", cfg.StoreDriver)
		return nil
	}

	pool, err := db.NewPool(ctx, cfg.DBURL, 2)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "migrations applied")
	return nil
}

func runCreateAdmin(ctx context.Context, args []string, cfg config.Config, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "admin email address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}
	if cfg.StoreDriver == config.StoreMemory {
		return fmt.Errorf("store %q does not outlive this process, point STORE_DRIVER at postgres or redis", cfg.StoreDriver)
	}

	password, err := promptPassword(stderr)
	if err != nil {
		return err
	}

	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store, closeStore, err := openStore(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer closeStore()

	hasher, err := security.NewHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}

	acc, err := account.NewService(store, hasher, nil, log).EnsureAdmin(ctx, *email, password)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "admin ready: id=%s email=%s roles=%v\n", acc.ID, acc.Email, acc.Roles)
	return nil
}

// promptPassword reads the password twice without echo.
func promptPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "Password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	fmt.Fprint(w, "Repeat password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	if !bytes.Equal(first, second) {
		return "", errors.New("passwords do not match")
	}
	if len(first) == 0 {
		return "", errors.New("password must not be empty")
	}

	return string(first), nil
}
