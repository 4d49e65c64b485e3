package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Reader struct {
		PreRollMs       int
		SilenceWindowMs int
		TickMs          int
		InterruptPolicy string
	}
	Narration struct {
		Mode    string // "static" | "service"
		BaseURL string
	}
	Listener struct {
		TokenSecret   string
		TokenExpMin   int
		TokenSkewSecs int
	}
	Books struct {
		Path string
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("reader.pre_roll_ms", 1000)
	v.SetDefault("reader.silence_window_ms", 3000)
	v.SetDefault("reader.tick_ms", 100)
	v.SetDefault("reader.interrupt_policy", "reset")

	v.SetDefault("narration.mode", "static")

	v.SetDefault("listener.token_exp_min", 720)
	v.SetDefault("listener.token_skew_secs", 60)

	v.SetDefault("books.path", "books.json")

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("reader.pre_roll_ms", "READER_PRE_ROLL_MS")
	v.BindEnv("reader.silence_window_ms", "READER_SILENCE_WINDOW_MS")
	v.BindEnv("reader.tick_ms", "READER_TICK_MS")
	v.BindEnv("reader.interrupt_policy", "READER_INTERRUPT_POLICY")

	v.BindEnv("narration.mode", "NARRATION_MODE")
	v.BindEnv("narration.base_url", "NARRATION_BASE_URL")

	v.BindEnv("listener.token_secret", "LISTENER_TOKEN_SECRET")
	v.BindEnv("listener.token_exp_min", "LISTENER_TOKEN_EXP_MIN")
	v.BindEnv("listener.token_skew_secs", "LISTENER_TOKEN_SKEW_SECS")

	v.BindEnv("books.path", "BOOKS_PATH")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Reader.PreRollMs = v.GetInt("reader.pre_roll_ms")
	c.Reader.SilenceWindowMs = v.GetInt("reader.silence_window_ms")
	c.Reader.TickMs = v.GetInt("reader.tick_ms")
	c.Reader.InterruptPolicy = v.GetString("reader.interrupt_policy")

	c.Narration.Mode = v.GetString("narration.mode")
	c.Narration.BaseURL = v.GetString("narration.base_url")

	c.Listener.TokenSecret = v.GetString("listener.token_secret")
	c.Listener.TokenExpMin = v.GetInt("listener.token_exp_min")
	c.Listener.TokenSkewSecs = v.GetInt("listener.token_skew_secs")

	c.Books.Path = v.GetString("books.path")

	log.Printf("config loaded: port=%s pre_roll=%dms silence=%dms policy=%s narration=%s",
		c.Server.Port, c.Reader.PreRollMs, c.Reader.SilenceWindowMs, c.Reader.InterruptPolicy, c.Narration.Mode)
	return c
}

func toString(v any) string { return fmt.Sprint(v) }
