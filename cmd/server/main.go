package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/teamsync-io/teamsync/internal/api"
	"github.com/teamsync-io/teamsync/internal/chat"
	"github.com/teamsync-io/teamsync/internal/config"
	"github.com/teamsync-io/teamsync/internal/events"
	"github.com/teamsync-io/teamsync/internal/server"
	"github.com/teamsync-io/teamsync/internal/stats"
	"github.com/teamsync-io/teamsync/internal/store"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	addr           string
	mongoURI       string
	databaseName   string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	// .env is optional; flags and real env vars win
	_ = godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("SERVER_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&mongoURI, "mongo-uri", envOr("MONGO_URI", "mongodb://localhost:27017"), "mongodb connection uri")
	flag.StringVar(&databaseName, "db-name", envOr("DATABASE_NAME", "teamsync"), "database name")
	flag.StringVar(&signingKey, "signing-key", envOr("SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
			allowedOrigins = strings.Split(v, ",")
		}
	}

	logger := log.New(os.Stderr, "[teamsync] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, mongoURI, databaseName, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := store.NewMongoStore(connectCtx, cfg.MongoURI, cfg.DatabaseName)
	cancelConnect()
	if err != nil {
		logger.Fatal("db connect:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	bus := events.NewBus(logger)
	presence := chat.NewPresenceTracker(logger, db, bus)
	svc := chat.NewService(logger, db, chat.NewMembershipAuthorizer(db), bus)

	router := server.NewRoomRouter(logger, db, presence, statsUpdater)
	fanout := server.NewFanout(logger, router)
	fanout.Register(bus)

	srv := api.NewApp(logger, mux, cfg, db, svc, presence, router)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down room router...")
	router.Shutdown()

	if err := db.Close(shutDownCtx); err != nil {
		logger.Fatalln("db close:", err)
	}

	logger.Println("shutdown complete")
}
