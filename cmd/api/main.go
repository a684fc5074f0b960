package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"arbflow/api"
	"arbflow/arbitrator"
	"arbflow/auth"
	"arbflow/authority"
	"arbflow/ballot"
	"arbflow/casefile"
	"arbflow/config"
	"arbflow/db"
	"arbflow/election"
	"arbflow/escrow"
	"arbflow/ledger"
	"arbflow/offerbook"
	"arbflow/oracle"
	"arbflow/outbox"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("level=fatal component=main msg=\"load config\" err=%v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("level=fatal component=main msg=\"JWT_SECRET is required\"")
	}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
			log.Fatalf("level=fatal component=main msg=\"run migrations\" err=%v", err)
		}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=main msg=\"connect database\" err=%v", err)
	}
	defer pool.Close()

	var publisher outbox.Publisher = outbox.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		producer, err := outbox.NewEventProducer(cfg.RabbitMQURL, cfg.OutboxExchange)
		if err != nil {
			log.Fatalf("level=fatal component=main msg=\"connect rabbitmq\" err=%v", err)
		}
		publisher = producer
		defer producer.Close()
	} else {
		log.Print("level=warn component=main msg=\"RABBITMQ_URL not set; outbox events will not leave the database\"")
	}
	go outbox.Relay(ctx, pool, publisher, 2*time.Second)

	var redisClient redis.UniversalClient
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("level=fatal component=main msg=\"parse REDIS_URL\" err=%v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	} else {
		log.Print("level=warn component=main msg=\"REDIS_URL not set; offer rate limiting disabled\"")
	}

	var prices oracle.PriceOracle
	if cfg.OracleBaseURL != "" {
		prices = oracle.NewClient(cfg.OracleBaseURL, cfg.OraclePair)
	} else {
		log.Print("level=warn component=main msg=\"ORACLE_BASE_URL not set; cases cannot be readied\"")
		prices = oracle.Static{}
	}

	var ballots ballot.Service = ballot.Nop{}
	if cfg.BallotBaseURL != "" {
		ballots = ballot.NewClient(cfg.BallotBaseURL, cfg.BallotAPIKey)
	} else {
		log.Print("level=warn component=main msg=\"BALLOT_BASE_URL not set; ballot commands are outbox-only\"")
	}

	var signers authority.Registry = authority.Nop{}
	if cfg.AuthorityBaseURL != "" {
		signers = authority.NewClient(cfg.AuthorityBaseURL, cfg.AuthorityAPIKey)
	} else {
		log.Print("level=warn component=main msg=\"AUTHORITY_BASE_URL not set; signer updates are outbox-only\"")
	}

	ledgerRepo := ledger.NewRepository()
	escrowRepo := escrow.NewRepository()
	arbRepo := arbitrator.NewRepository()
	caseRepo := casefile.NewRepository()

	authService := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)
	ledgerService := ledger.NewService(pool)
	escrowService := escrow.NewService(pool, ledgerRepo, cfg.DepositToken)
	caseService := casefile.NewService(pool, ledgerRepo, escrowRepo, arbRepo, prices)
	offerService := offerbook.NewService(pool, caseRepo, arbRepo)
	arbService := arbitrator.NewService(pool)
	electionService := election.NewService(pool, ledgerRepo, arbRepo, ballots, signers)

	handler := api.NewHandler(authService, ledgerService, escrowService, caseService, offerService, arbService, electionService)
	router := api.NewRouter(handler, api.RouterConfig{
		WebhookToken:    cfg.WebhookToken,
		OfferRatePerMin: cfg.OfferRatePerMinute,
		Limiter:         api.NewRateLimiter(redisClient),
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("level=info component=main msg=\"listening\" addr=%s", cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Print("level=info component=main msg=\"shutdown signal received\"")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("level=error component=main msg=\"server failed\" err=%v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=main msg=\"graceful shutdown failed\" err=%v", err)
	}
}
