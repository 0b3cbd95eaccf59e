package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Duel DuelConfig `yaml:"duel"`
}

// DuelConfig holds the product-tunable timing constants of the duel engine.
// Every field is optional; Tunables applies defaults.
type DuelConfig struct {
	QuestionTimeLimit   string `yaml:"question_time_limit"`
	ResultDisplay       string `yaml:"result_display"`
	CountdownTicks      int    `yaml:"countdown_ticks"`
	CountdownInterval   string `yaml:"countdown_interval"`
	GracePeriod         string `yaml:"grace_period"`
	BotMinThink         string `yaml:"bot_min_think"`
	BotMaxThink         string `yaml:"bot_max_think"`
	CompletionRetries   int    `yaml:"completion_retries"`
	CompletionBackoff   string `yaml:"completion_backoff"`
	TimerUpdateInterval string `yaml:"timer_update_interval"`
	QuestionTTL         string `yaml:"question_ttl"`
}

// Tunables is the resolved, default-applied form of DuelConfig.
type Tunables struct {
	QuestionTimeLimit   time.Duration
	ResultDisplay       time.Duration
	CountdownTicks      int
	CountdownInterval   time.Duration
	GracePeriod         time.Duration
	BotMinThink         time.Duration
	BotMaxThink         time.Duration
	CompletionRetries   int
	CompletionBackoff   time.Duration
	TimerUpdateInterval time.Duration
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty or invalid.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// DefaultTunables is the value set used when nothing is configured.
func DefaultTunables() Tunables {
	return Tunables{
		QuestionTimeLimit:   30 * time.Second,
		ResultDisplay:       3 * time.Second,
		CountdownTicks:      3,
		CountdownInterval:   time.Second,
		GracePeriod:         30 * time.Second,
		BotMinThink:         2 * time.Second,
		BotMaxThink:         20 * time.Second,
		CompletionRetries:   3,
		CompletionBackoff:   150 * time.Millisecond,
		TimerUpdateInterval: 5 * time.Second,
	}
}

// Resolve applies defaults to the raw duel config. The bot's maximum think
// time is clamped strictly under the question deadline so a bot can never
// time out under normal scheduling.
func (d DuelConfig) Resolve() Tunables {
	def := DefaultTunables()
	t := Tunables{
		QuestionTimeLimit:   TTLDuration(d.QuestionTimeLimit, def.QuestionTimeLimit),
		ResultDisplay:       TTLDuration(d.ResultDisplay, def.ResultDisplay),
		CountdownTicks:      d.CountdownTicks,
		CountdownInterval:   TTLDuration(d.CountdownInterval, def.CountdownInterval),
		GracePeriod:         TTLDuration(d.GracePeriod, def.GracePeriod),
		BotMinThink:         TTLDuration(d.BotMinThink, def.BotMinThink),
		BotMaxThink:         TTLDuration(d.BotMaxThink, def.BotMaxThink),
		CompletionRetries:   d.CompletionRetries,
		CompletionBackoff:   TTLDuration(d.CompletionBackoff, def.CompletionBackoff),
		TimerUpdateInterval: TTLDuration(d.TimerUpdateInterval, def.TimerUpdateInterval),
	}
	if t.CountdownTicks <= 0 {
		t.CountdownTicks = def.CountdownTicks
	}
	if t.CompletionRetries <= 0 {
		t.CompletionRetries = def.CompletionRetries
	}
	if t.BotMaxThink >= t.QuestionTimeLimit {
		t.BotMaxThink = t.QuestionTimeLimit * 2 / 3
	}
	if t.BotMinThink > t.BotMaxThink {
		t.BotMinThink = t.BotMaxThink / 2
	}
	return t
}
