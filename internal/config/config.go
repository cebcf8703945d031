package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/sketchroom/internal/engine"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const (
	EnvPrefix      = "SKETCHROOM"
	ReleaseVersion = "0.1.0"
)

type Config struct {
	Bind            string
	Port            int
	DatabaseURL     string
	TurnDuration    time.Duration
	MaxRounds       int
	MaxPlayers      int
	RoomIdleTimeout time.Duration
	WordsFile       string
	WordCategory    string
	CanvasWidth     float64
	CanvasHeight    float64
	LogLevel        string
	DevLogging      bool
	AllowedOrigins  []string
	AutoCreate      bool
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.TurnDuration < time.Second {
		return fmt.Errorf("turn duration must be at least 1s: %s", c.TurnDuration)
	}
	if c.TurnDuration%time.Second != 0 {
		return fmt.Errorf("turn duration must be whole seconds: %s", c.TurnDuration)
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("max rounds must be positive: %d", c.MaxRounds)
	}
	if c.MaxPlayers < 2 {
		return fmt.Errorf("max players must be at least 2: %d", c.MaxPlayers)
	}
	if c.RoomIdleTimeout < 0 {
		return errors.New("room idle timeout cannot be negative")
	}
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		return fmt.Errorf("invalid canvas size %gx%g", c.CanvasWidth, c.CanvasHeight)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Rules applies the configured overrides to the default game rules.
func (c *Config) Rules() engine.Rules {
	r := engine.DefaultRules()
	r.TurnDurationSec = int(c.TurnDuration / time.Second)
	r.MaxRounds = c.MaxRounds
	r.MaxPlayers = c.MaxPlayers
	r.Canvas.Width = c.CanvasWidth
	r.Canvas.Height = c.CanvasHeight
	return r
}

// NewCommand builds the root command. Every flag can also be set through a
// SKETCHROOM_ prefixed environment variable or a .env file; explicit flags
// win.
func NewCommand(cfg *Config, run func(ctx context.Context, cfg *Config) error) *cobra.Command {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     "sketchroom",
		Short:   "Realtime drawing and guessing game server.",
		Args:    cobra.ExactArgs(0),
		Version: ReleaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	def := engine.DefaultRules()
	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: SKETCHROOM_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: SKETCHROOM_PORT)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres url for game history, empty disables it (env: SKETCHROOM_DATABASE_URL)")
	fs.DurationVar(&cfg.TurnDuration, "turn-duration", time.Duration(def.TurnDurationSec)*time.Second, "length of a drawing turn (env: SKETCHROOM_TURN_DURATION)")
	fs.IntVar(&cfg.MaxRounds, "max-rounds", def.MaxRounds, "rounds per game (env: SKETCHROOM_MAX_ROUNDS)")
	fs.IntVar(&cfg.MaxPlayers, "max-players", def.MaxPlayers, "connected players per room (env: SKETCHROOM_MAX_PLAYERS)")
	fs.DurationVar(&cfg.RoomIdleTimeout, "room-idle-timeout", 5*time.Minute, "time before an empty room is closed, 0 keeps rooms forever (env: SKETCHROOM_ROOM_IDLE_TIMEOUT)")
	fs.StringVar(&cfg.WordsFile, "words-file", "", "json file of word categories, empty uses the built-in list (env: SKETCHROOM_WORDS_FILE)")
	fs.StringVar(&cfg.WordCategory, "word-category", "", "draw words from one category only (env: SKETCHROOM_WORD_CATEGORY)")
	fs.Float64Var(&cfg.CanvasWidth, "canvas-width", def.Canvas.Width, "logical canvas width (env: SKETCHROOM_CANVAS_WIDTH)")
	fs.Float64Var(&cfg.CanvasHeight, "canvas-height", def.Canvas.Height, "logical canvas height (env: SKETCHROOM_CANVAS_HEIGHT)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "debug, info, warn or error (env: SKETCHROOM_LOG_LEVEL)")
	fs.BoolVar(&cfg.DevLogging, "dev-logging", false, "human readable console logs (env: SKETCHROOM_DEV_LOGGING)")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", nil, "extra websocket origin patterns (env: SKETCHROOM_ALLOWED_ORIGINS)")
	fs.BoolVar(&cfg.AutoCreate, "auto-create", false, "create rooms on first websocket connect (env: SKETCHROOM_AUTO_CREATE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("sketchroom v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
