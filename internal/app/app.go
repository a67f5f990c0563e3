// Package app wires configuration into a running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/boardimg"
	"github.com/park285/Cheese-TicTacToe-bot/internal/bot"
	"github.com/park285/Cheese-TicTacToe-bot/internal/config"
	"github.com/park285/Cheese-TicTacToe-bot/internal/fanout"
	"github.com/park285/Cheese-TicTacToe-bot/internal/irisfast"
	"github.com/park285/Cheese-TicTacToe-bot/internal/msgcat"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/park285/Cheese-TicTacToe-bot/internal/opsapi"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	Config  *config.AppConfig
	Manager *session.Manager
	Bot     *bot.Bot
	Client  *irisfast.Client
	WS      *irisfast.WebSocket
	Ops     *http.Server

	rdb  *redis.Client
	repo *session.Repository
}

// Headers returns the Iris auth headers configured for this bot.
func Headers(cfg *config.AppConfig) irisfast.HeaderProvider {
	return func() map[string]string {
		h := map[string]string{}
		if cfg.XUserID != "" {
			h["X-User-Id"] = cfg.XUserID
		}
		if cfg.XUserEmail != "" {
			h["X-User-Email"] = cfg.XUserEmail
		}
		if cfg.XSessionID != "" {
			h["X-Session-Id"] = cfg.XSessionID
		}
		return h
	}
}

// New builds every component. Without REDIS_URL sessions live in process memory,
// which only suits a single replica.
func New(cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	a := &App{Config: cfg}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	var (
		store  session.Store
		users  session.UserIndex
		locker session.Locker
		steps  bot.StepStore
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.rdb = redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			_ = a.rdb.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		store = session.NewRedisStore(a.rdb, cfg.SessionTTL)
		users = session.NewRedisUserIndex(a.rdb, cfg.SessionTTL)
		locker = session.NewRedisLocker(a.rdb, cfg.LockTTL)
		steps = bot.NewRedisStepStore(a.rdb, cfg.SessionTTL)
	} else {
		obslog.L().Warn("redis_disabled", zap.String("reason", "REDIS_URL empty, using in-memory stores"))
		store = session.NewMemoryStore()
		users = session.NewMemoryUserIndex()
		locker = session.NewKeyedMutex()
		steps = bot.NewMemoryStepStore()
	}

	a.Client = irisfast.NewClient(cfg.IrisBaseURL,
		irisfast.WithHeaderProvider(Headers(cfg)),
		irisfast.WithInlineKeyboard(cfg.InlineKeyboard),
	)
	egress := irisfast.NewEgress(cfg.DryRun, a.Client, obslog.L())

	var renderer *boardimg.Renderer
	var dispatchOpts []fanout.DispatcherOption
	if cfg.BoardImages {
		renderer = boardimg.NewRenderer(cfg.BoardImageWidth)
		dispatchOpts = append(dispatchOpts, fanout.WithSnapshots(fanout.PNGSnapshots{Renderer: renderer}))
	}
	dispatcher := fanout.NewDispatcher(egress, cat, cfg.BotPrefix, dispatchOpts...)

	mgrOpts := []session.Option{session.WithLocker(locker), session.WithNotifier(dispatcher)}
	if cfg.DatabaseURL != "" {
		repo, err := session.NewRepository(cfg.DatabaseURL)
		if err != nil {
			a.closeStores()
			return nil, fmt.Errorf("init repository: %w", err)
		}
		a.repo = repo
		mgrOpts = append(mgrOpts, session.WithArchive(repo))
	}
	a.Manager = session.NewManager(store, users, mgrOpts...)

	a.Bot = bot.New(a.Manager, steps, egress, cat, cfg.BotPrefix,
		bot.WithRoomFilter(cfg.RoomAllowed),
		bot.WithFoldedMenu(true),
	)

	a.WS = irisfast.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
	a.WS.SetHeaderProvider(Headers(cfg))
	a.WS.OnStateChange(func(state irisfast.WebSocketState) {
		obslog.L().Info("ws_state", zap.String("state", state.String()))
	})
	a.WS.OnMessage(a.Bot.OnMessage)

	if cfg.OpsAddr != "" {
		opsOpts := []opsapi.Option{
			opsapi.WithWebSocketState(func() string { return a.WS.State().String() }),
		}
		if a.rdb != nil {
			opsOpts = append(opsOpts, opsapi.WithPinger(func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() }))
		}
		if renderer != nil {
			opsOpts = append(opsOpts, opsapi.WithRenderer(renderer))
		}
		a.Ops = &http.Server{
			Addr:              cfg.OpsAddr,
			Handler:           opsapi.NewHandler(a.Manager, opsOpts...).Routes(),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	return a, nil
}

// Start connects the websocket and, if configured, starts the ops server.
func (a *App) Start(ctx context.Context) error {
	if err := a.WS.Connect(ctx); err != nil {
		return fmt.Errorf("ws connect: %w", err)
	}
	if a.Ops != nil {
		go func() {
			obslog.L().Info("ops_listen", zap.String("addr", a.Ops.Addr))
			if err := a.Ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				obslog.L().Error("ops_server_error", zap.Error(err))
			}
		}()
	}
	return nil
}

// Close stops the transport first so no new events arrive, then releases stores.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.WS != nil {
		if err := a.WS.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ws close: %w", err))
		}
	}
	if a.Ops != nil {
		if err := a.Ops.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ops shutdown: %w", err))
		}
	}
	if err := a.closeStores(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	var errs []error
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("repository close: %w", err))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	return errors.Join(errs...)
}
