// Package app wires configuration, logging, the backend client and the
// conversation store into the runnable surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/docchat/client/internal/api"
	"github.com/docchat/client/internal/backend"
	"github.com/docchat/client/internal/config"
	"github.com/docchat/client/internal/conversation"
	"github.com/docchat/client/internal/dropzone"
	"github.com/docchat/client/internal/models"
	"github.com/docchat/client/internal/storage"
	"github.com/docchat/client/internal/transcript"
	"github.com/docchat/client/internal/upload"
	"github.com/docchat/client/internal/web"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// App holds one conversation and everything it talks to.
type App struct {
	Config *config.AppConfig
	Logger *zap.Logger
	Client *backend.Client
	Store  *conversation.Store
	Stager *storage.Stager
}

// New builds an App from cfg. Close releases it.
func New(cfg *config.AppConfig, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	stager, err := storage.NewStager(cfg.Upload.StagingDirectory, cfg.MaxFileSize())
	if err != nil {
		return nil, err
	}

	client := backend.NewClient(backend.Options{
		AskURL:    cfg.AskURL(),
		UploadURL: cfg.UploadURL(),
		Logger:    logger,
	})

	log := transcript.New(
		models.Participant{ID: cfg.Chat.UserID, Name: cfg.Chat.UserName},
		models.Participant{ID: cfg.Chat.ResponderID, Name: cfg.Chat.ResponderName},
		transcript.WithTimeFormat(cfg.Chat.TimeFormat),
	)

	store := conversation.New(conversation.Config{
		Log:            log,
		Asker:          client,
		Transport:      client,
		Validator:      upload.Validator{SniffContent: cfg.Upload.SniffContent},
		AskTimeout:     cfg.AskTimeout(),
		UploadTimeout:  cfg.UploadTimeout(),
		CloseOnSuccess: cfg.Upload.CloseOnSuccess,
		CancelOnClose:  cfg.Upload.CancelOnClose,
		Logger:         logger,
	})

	return &App{
		Config: cfg,
		Logger: logger,
		Client: client,
		Store:  store,
		Stager: stager,
	}, nil
}

// Close stops outstanding work and removes staged files.
func (a *App) Close() {
	a.Store.Close()
	if err := a.Stager.Clear(); err != nil {
		a.Logger.Warn("failed to clear staging directory", zap.Error(err))
	}
}

// SelectPath makes the file at path the candidate upload.
func (a *App) SelectPath(path string) (*models.FileInfo, error) {
	f, err := upload.OpenLocal(path)
	if err != nil {
		return nil, err
	}
	return a.Store.SelectFile(f)
}

// HandleDrop selects a dropped file and, when configured, submits it.
func (a *App) HandleDrop(path string) {
	info, err := a.SelectPath(path)
	if err != nil {
		a.Logger.Info("dropped file not selected", zap.String("path", path), zap.Error(err))
		return
	}
	if !a.Config.Upload.AutoSubmitDrops {
		return
	}
	if _, err := a.Store.SubmitUpload(); err != nil {
		a.Logger.Warn("dropped file not submitted", zap.String("file", info.Name), zap.Error(err))
	}
}

// NewEcho builds the HTTP surface.
func (a *App) NewEcho(version string) *echo.Echo {
	cfg := a.Config

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	var origins []string
	if cfg.Server.EnableCORS {
		origins = api.ParseOrigins(cfg.Server.AllowOrigins)
	}
	api.SetupMiddleware(e, api.MiddlewareOptions{
		Logger:         a.Logger,
		LogRequests:    cfg.Server.EnableRequestLogging,
		BodyLimit:      cfg.RequestBodyLimit(),
		RequestTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		AllowOrigins:   origins,
	})

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Conversation:  a.Store,
		Stager:        a.Stager,
		Logger:        a.Logger,
		Version:       version,
		BackendURL:    cfg.Backend.BaseURL,
		AskTimeout:    cfg.AskTimeout(),
		UploadTimeout: cfg.UploadTimeout(),
	}))

	if web.HasEmbeddedFiles() {
		if err := web.RegisterStaticRoutes(e); err != nil {
			a.Logger.Warn("failed to register static routes", zap.Error(err))
		}
	}
	return e
}

// newServer applies the configured timeouts. Requests waiting on a backend
// call extend their own write deadline.
func (a *App) newServer(handler http.Handler) *http.Server {
	cfg := a.Config
	return &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}
}

// Serve runs the HTTP server and, when configured, the drop-folder watcher
// until ctx is done or either fails.
func (a *App) Serve(ctx context.Context, version string) error {
	cfg := a.Config
	srv := a.newServer(a.NewEcho(version))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("version", version),
			zap.String("backend", cfg.Backend.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if dir := cfg.Upload.DropDirectory; dir != "" {
		watcher := dropzone.New(dir, dropzone.Options{Logger: a.Logger})
		g.Go(func() error {
			return watcher.Run(gctx, a.HandleDrop)
		})
	}

	return g.Wait()
}
