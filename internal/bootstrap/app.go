// Package bootstrap loads configuration and wires the application together.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ompatelz/chattingapp/internal/command"
	wsHandler "github.com/ompatelz/chattingapp/internal/handler/websocket"
	"github.com/ompatelz/chattingapp/internal/hub"
	"github.com/ompatelz/chattingapp/internal/infra/persistence/jsonfile"
	"github.com/ompatelz/chattingapp/internal/service"
)

// Config holds the runtime settings, from the environment with the bind port
// optionally overridden by the -port flag.
type Config struct {
	Port     string
	DataDir  string
	LogLevel string
	AppEnv   string
}

// LoadConfig reads .env (best-effort) and the environment. portFlag, when
// non-empty, wins over CHAT_PORT.
func LoadConfig(portFlag string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     os.Getenv("CHAT_PORT"),
		DataDir:  os.Getenv("CHAT_DATA_DIR"),
		LogLevel: os.Getenv("LOG_LEVEL"),
		AppEnv:   os.Getenv("APP_ENV"),
	}
	if portFlag != "" {
		cfg.Port = portFlag
	}
	if cfg.Port == "" {
		cfg.Port = "8765"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL %q, using info", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// App bundles the running components.
type App struct {
	Config     *Config
	Log        *logrus.Logger
	Hub        *hub.Hub
	HTTPServer *http.Server
}

// NewApp builds the full dependency graph: store, repositories, services,
// dispatcher, hub, and the HTTP server exposing the websocket endpoint.
func NewApp(portFlag string) (*App, error) {
	cfg, err := LoadConfig(portFlag)
	if err != nil {
		return nil, err
	}

	log := logrus.StandardLogger()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)
	log.SetOutput(os.Stdout)

	store, err := jsonfile.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}
	userRepo := jsonfile.NewUserRepository(store)
	roomRepo := jsonfile.NewRoomRepository(store)
	historyRepo := jsonfile.NewHistoryRepository(store)

	hubInstance := hub.New()

	rooms := service.NewRoomService(roomRepo, hubInstance)
	sessions := service.NewSessionService(userRepo, rooms, hubInstance)
	messages := service.NewMessageService(historyRepo, sessions, rooms, hubInstance)
	presence := service.NewPresenceService(sessions, rooms, hubInstance)

	ctx := context.Background()
	if err := sessions.Restore(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore users: %w", err)
	}
	if err := rooms.Restore(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore rooms: %w", err)
	}
	if err := messages.Restore(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore history: %w", err)
	}

	dispatcher := command.NewDispatcher(sessions, rooms, messages, presence)
	hubInstance.Attach(dispatcher, presence)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := wsHandler.NewHandler(hubInstance)
	router.GET("/ws", handler.HandleConnection)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	return &App{
		Config: cfg,
		Log:    log,
		Hub:    hubInstance,
		HTTPServer: &http.Server{
			Addr:    ":" + cfg.Port,
			Handler: router,
		},
	}, nil
}

// Start runs the hub loop, binds the listener, and confirms only once the
// port is actually held.
func (a *App) Start() error {
	go a.Hub.Run()

	listener, err := net.Listen("tcp", a.HTTPServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", a.HTTPServer.Addr, err)
	}
	a.Log.Infof("Chat server listening on ws://0.0.0.0:%s/ws", a.Config.Port)

	go func() {
		if err := a.HTTPServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("HTTP server error: %v", err)
		}
	}()
	return nil
}

// Shutdown stops accepting connections, then drains the hub, which runs the
// disconnect path (and final persistence) for every live client.
func (a *App) Shutdown() {
	a.Log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	a.Hub.Stop()
	a.Log.Info("Shutdown complete")
}
