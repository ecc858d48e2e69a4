// Package main runs the chessroom match server and its database maintenance commands.
package main

import (
	"fmt"
	"os"
	"time"

	"chessroom/cmd/chess-server/cli"
	"chessroom/internal/server/clock"
	"chessroom/internal/server/processor"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/term"
)

type serveCmd struct {
	APIHost string `name:"api-host" default:"localhost" env:"CHESSROOM_API_HOST" help:"HTTP API host."`
	APIPort int    `name:"api-port" default:"8080" env:"CHESSROOM_API_PORT" help:"HTTP API port."`
	WSHost  string `name:"ws-host" default:"localhost" env:"CHESSROOM_WS_HOST" help:"WebSocket host."`
	WSPort  int    `name:"ws-port" default:"8081" env:"CHESSROOM_WS_PORT" help:"WebSocket port."`

	Store      string `enum:"memory,sqlite,redis" default:"memory" env:"CHESSROOM_STORE" help:"Match store backend (memory, sqlite, redis)."`
	SQLitePath string `name:"sqlite-path" default:"chessroom.db" env:"CHESSROOM_SQLITE_PATH" help:"SQLite database file."`
	RedisURL   string `name:"redis-url" default:"redis://localhost:6379/0" env:"CHESSROOM_REDIS_URL" help:"Redis connection URL."`

	Initial   time.Duration `default:"8m" env:"CHESSROOM_INITIAL" help:"Starting time per side."`
	Increment time.Duration `default:"3s" env:"CHESSROOM_INCREMENT" help:"Time added after each move (0 disables)."`
	Tick      time.Duration `default:"1s" env:"CHESSROOM_TICK" help:"Clock tick interval."`
	Sweep     time.Duration `default:"30s" env:"CHESSROOM_SWEEP" help:"Ghost session sweep interval."`

	AllowedOrigins []string `name:"allowed-origins" env:"CHESSROOM_ALLOWED_ORIGINS" help:"Origins accepted for WebSocket and CORS (empty allows all)."`
	ActionRate     float64  `name:"action-rate" default:"10" env:"CHESSROOM_ACTION_RATE" help:"Actions per second allowed per connection."`
	ActionBurst    int      `name:"action-burst" default:"20" env:"CHESSROOM_ACTION_BURST" help:"Action burst allowed per connection."`

	Dev     bool   `env:"CHESSROOM_DEV" help:"Development mode (relaxed rate limits, sqlite WAL)."`
	PID     string `name:"pid" env:"CHESSROOM_PID" help:"Optional path to write PID file."`
	PIDLock bool   `name:"pid-lock" help:"Lock PID file to allow only one instance (requires --pid)."`
}

func (c serveCmd) clockConfig() clock.Config {
	cfg := clock.Config{
		Initial:   c.Initial,
		Increment: c.Increment,
		Interval:  c.Tick,
	}
	if c.Increment == 0 {
		cfg.Increment = clock.NoIncrement
	}
	return cfg
}

type dbPathCmd struct {
	Path string `required:"" env:"CHESSROOM_SQLITE_PATH" help:"Database file path."`
}

type dbQueryCmd struct {
	Path        string `required:"" env:"CHESSROOM_SQLITE_PATH" help:"Database file path."`
	Status      string `help:"Only matches with this status."`
	Participant string `help:"Only matches this connection took part in."`
	Limit       int    `default:"50" help:"Maximum number of matches."`
}

var CLI struct {
	Debug bool `help:"Enable debug logging and lock-order checking." env:"CHESSROOM_DEBUG"`

	Serve serveCmd `cmd:"" default:"withargs" help:"Run the match server."`

	DB struct {
		Init   dbPathCmd  `cmd:"" help:"Create the match schema."`
		Delete dbPathCmd  `cmd:"" help:"Delete the database file."`
		Query  dbQueryCmd `cmd:"" help:"List stored matches."`
	} `cmd:"" name:"db" help:"Maintain the SQLite match database."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func setupLogging(debug bool) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Warn().Msg("debug logging enabled")
	}
}

func main() {
	// A missing .env is normal; flags and the environment still apply
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI,
		kong.Name("chess-server"),
		kong.Description("two-player chess match server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	setupLogging(CLI.Debug)
	deadlock.Opts.Disable = !CLI.Debug

	var err error
	switch ctx.Command() {
	case "serve":
		err = serve(CLI.Serve)
	case "db init":
		err = cli.Init(os.Stdout, CLI.DB.Init.Path)
	case "db delete":
		err = cli.Delete(os.Stdout, CLI.DB.Delete.Path)
	case "db query":
		q := CLI.DB.Query
		err = cli.Query(os.Stdout, q.Path, cli.QueryFilter{
			Status:      q.Status,
			Participant: q.Participant,
			Limit:       q.Limit,
		})
	default:
		err = fmt.Errorf("unknown command: %s", ctx.Command())
	}
	if err != nil {
		writeError(err)
	}
}

// sweepInterval falls back to the processor default when unset
func sweepInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return processor.DefaultSweepInterval
	}
	return d
}
