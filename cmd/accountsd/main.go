package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	accounts "github.com/rallende/go-accounts"
	"github.com/rallende/go-accounts/activitymap"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := accounts.DefaultConfig()
	if issuer := os.Getenv("ACCOUNTS_ISSUER"); issuer != "" {
		cfg.Issuer = issuer
	}
	if lifetime := os.Getenv("ACCOUNTS_TOKEN_LIFETIME"); lifetime != "" {
		d, err := time.ParseDuration(lifetime)
		if err != nil {
			return err
		}
		cfg.TokenExpiration = d
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := accounts.Bootstrap(ctx, db); err != nil {
		return err
	}

	privateKey, publicKey, err := loadKeys()
	if err != nil {
		return err
	}

	repo := accounts.NewRepositoryManager(db)
	repo.MustValidate()

	sink := repo.Activity()
	if os.Getenv("ACCOUNTS_DEBUG") != "" {
		dbSink := sink
		sink = accounts.ActivitySinkFunc(func(ctx context.Context, event accounts.ActivityEvent) error {
			out, err := json.Marshal(activitymap.Normalize(event))
			if err == nil {
				log.Printf("activity: %s", out)
			}
			return dbSink.Record(ctx, event)
		})
	}

	states := accounts.NewAccountStateMachine(repo.Users(),
		accounts.WithStateMachineActivitySink(sink),
	)

	verifier := accounts.NewCredentialVerifier(repo.Users()).
		WithActivitySink(sink).
		WithStateMachine(states)

	issuer := accounts.NewTokenIssuer(privateKey, cfg.GetTokenExpiration(), cfg.GetIssuer(), cfg.GetAudience())
	validator := accounts.NewTokenValidator(publicKey, cfg.GetIssuer(), cfg.GetAudience())

	auther := accounts.NewAuthenticator(verifier, issuer)

	resolver := accounts.NewTierResolver(repo.Tiers())
	gate := accounts.NewGate(validator, resolver, cfg)

	recoveryMgr := accounts.NewRecoveryManager(
		repo.Users(),
		repo.Recoveries(),
		accounts.NewLogMailer(nil),
	).WithActivitySink(sink)

	controller := accounts.NewAccountsController(accounts.ControllerDeps{
		Repo:     repo,
		Auth:     auther,
		Gate:     gate,
		Recovery: recoveryMgr,
		States:   states,
		Resolver: resolver,
		Sink:     sink,
	})

	app := fiber.New(fiber.Config{
		AppName:      "accountsd",
		ErrorHandler: accounts.ErrorHandler(nil),
	})

	app.Use(requestid.New())
	app.Use(recover.New())

	controller.RegisterRoutes(app)

	addr := os.Getenv("ACCOUNTS_ADDR")
	if addr == "" {
		addr = ":3000"
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	}
}

func openDatabase() (*bun.DB, error) {
	dsn := os.Getenv("ACCOUNTS_DSN")
	if dsn == "" {
		dsn = "file:accounts.db?cache=shared&_pragma=foreign_keys(1)"
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// loadKeys reads the RSA pair from disk, or mints an ephemeral pair when no
// paths are configured. Ephemeral keys invalidate all sessions on restart.
func loadKeys() (*rsa.PrivateKey, *rsa.PublicKey, error) {
	privatePath := os.Getenv("ACCOUNTS_PRIVATE_KEY")
	publicPath := os.Getenv("ACCOUNTS_PUBLIC_KEY")

	if privatePath == "" {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, nil, err
		}
		log.Println("no key configured, using an ephemeral RSA key pair")
		return key, &key.PublicKey, nil
	}

	private, err := accounts.LoadPrivateKey(privatePath)
	if err != nil {
		return nil, nil, err
	}

	if publicPath == "" {
		return private, &private.PublicKey, nil
	}

	public, err := accounts.LoadPublicKey(publicPath)
	if err != nil {
		return nil, nil, err
	}

	return private, public, nil
}
