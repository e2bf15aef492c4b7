package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"

	"github.com/founderskick/realtime/pkg/auth"
	"github.com/founderskick/realtime/pkg/events"
	"github.com/founderskick/realtime/pkg/model"
	"github.com/founderskick/realtime/pkg/presence"
	"github.com/founderskick/realtime/pkg/snowflake"
	"github.com/founderskick/realtime/pkg/store"
)

type messageStore interface {
	SubmitMessage(ctx context.Context, in store.SubmitInput) (model.Message, error)
	FetchMessages(ctx context.Context, userID, otherID string) ([]model.Message, error)
	FetchConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error)
	CreateConnectionRequest(ctx context.Context, senderID, receiverID string) (model.ConnectionRequest, error)
	AcceptConnectionRequest(ctx context.Context, id int64, receiverID string) (model.ConnectionRequest, error)
}

type presenceReader interface {
	OnlineUsers(ctx context.Context) ([]string, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
	LastSeen(ctx context.Context, userID string) (time.Time, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, recipientID string, ev model.Event) error
}

type api struct {
	log      *slog.Logger
	store    messageStore
	presence presenceReader
	bus      eventPublisher
}

type loginRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login mints a token for a user ID. The real identity provider lives in
// the auth collaborator; this endpoint exists so the platform runs end to
// end without it.
func (a *api) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	token, err := auth.GenerateToken(req.UserID, req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", a.Login)
	mux.Handle("POST /api/messages", auth.Middleware(http.HandlerFunc(a.SubmitMessage)))
	mux.Handle("GET /api/messages/{userID}", auth.Middleware(http.HandlerFunc(a.FetchMessages)))
	mux.Handle("GET /api/conversations", auth.Middleware(http.HandlerFunc(a.FetchConversations)))
	mux.Handle("POST /api/connections", auth.Middleware(http.HandlerFunc(a.CreateConnection)))
	mux.Handle("POST /api/connections/{id}/accept", auth.Middleware(http.HandlerFunc(a.AcceptConnection)))
	mux.Handle("GET /api/users/online", auth.Middleware(http.HandlerFunc(a.OnlineUsers)))
	mux.Handle("GET /api/users/{userID}/presence", auth.Middleware(http.HandlerFunc(a.UserPresence)))
	return CORSMiddleware(mux)
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("read config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if cfg.InstanceID == "" {
		cfg.InstanceID = "api-" + uuid.NewString()[:8]
	}

	db, err := store.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
	if err != nil {
		logger.Error("connect to ScyllaDB", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ids, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		logger.Error("init snowflake node", "error", err)
		os.Exit(1)
	}

	presenceStore := presence.NewRedisStore(cfg.RedisAddr)
	defer presenceStore.Close()

	producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.InstanceID)
	defer producer.Close()

	a := &api{
		log:      logger,
		store:    store.NewGateway(db, ids, logger),
		presence: presenceStore,
		bus:      producer,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{Addr: cfg.Addr, Handler: a.routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("api listening", "addr", cfg.Addr, "instance_id", cfg.InstanceID)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("api server", "error", err)
		os.Exit(1)
	}
}
