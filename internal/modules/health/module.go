package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"paper_trader/internal/models"
	"paper_trader/internal/modules/config"
	"paper_trader/internal/modules/health/service"
	"paper_trader/internal/notify"
	"paper_trader/internal/portfolio"
	"paper_trader/internal/runner"
	"paper_trader/pkg/logger"

	"github.com/bytedance/sonic"
	"go.uber.org/fx"
)

type Config struct {
	Addr string // например ":8080"
}

func NewConfig(cfg *config.Config) Config {
	addr := cfg.Health.Addr
	if addr == "" {
		addr = ":8080"
	}
	return Config{Addr: addr}
}

// BotInfo: то что health знает про бота.
type BotInfo interface {
	State() models.BotState
	Config() models.BotConfig
}

// Deps: источники read-only данных для HTTP.
type Deps struct {
	fx.In

	State  *service.State
	Engine *portfolio.Engine
	Log    *notify.EventLog
	Bot    *runner.Scheduler
}

func NewMux(d Deps) *http.ServeMux {
	return newMux(d.State, d.Engine, d.Log, d.Bot)
}

func newMux(state *service.State, engine *portfolio.Engine, log *notify.EventLog, bot BotInfo) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// readiness: цены уже идут
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"ready":       state.Ready(),
			"wsConnected": state.WSConnected(),
			"uptimeSec":   int64(state.Uptime().Seconds()),
			"botState":    bot.State(),
			"lastTickUnix": func() int64 {
				t := state.LastTick()
				if t.IsZero() {
					return 0
				}
				return t.Unix()
			}(),
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"portfolio": engine.Snapshot(),
			"bot": map[string]any{
				"state":  bot.State(),
				"config": bot.Config(),
			},
		})
	})

	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log.Entries())
	})

	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, engine.History())
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func RunHTTP(lc fx.Lifecycle, cfg Config, mux *http.ServeMux, state *service.State) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			go func() { _ = srv.Serve(ln) }()
			state.SetReady(true)
			logger.Info("[HEALTH] listening on %s", cfg.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			state.SetReady(false)
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewConfig,
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}
