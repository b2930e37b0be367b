// Package config loads the daemon configuration from a yaml file, falling
// back to defaults when the file is absent.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quorum"
)

// Duration reads either a Go duration string ("90s", "2m") or a plain
// nanosecond count.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Runtime struct {
	IdleTimeout   Duration `yaml:"idle_timeout"`
	SweepInterval Duration `yaml:"sweep_interval"`
	MailboxSize   int      `yaml:"mailbox_size"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Matchmaking struct {
	MinPlayersPerMatch         int      `yaml:"min_players_per_match"`
	MaxPlayersPerMatch         int      `yaml:"max_players_per_match"`
	MaxLevelDifference         int      `yaml:"max_level_difference"`
	ExpandLevelDifferenceAfter Duration `yaml:"expand_level_difference_after"`
	RegionPriority             bool     `yaml:"region_priority"`
	RequestTimeout             Duration `yaml:"request_timeout"`
	MaxQueueSize               int      `yaml:"max_queue_size"`
	MatchCheckInterval         Duration `yaml:"match_check_interval"`
	CleanupInterval            Duration `yaml:"cleanup_interval"`
}

type Router struct {
	MaxQueueSize     int      `yaml:"max_queue_size"`
	MaxRetryAttempts int      `yaml:"max_retry_attempts"`
	HistorySize      int      `yaml:"history_size"`
	MessageTTL       Duration `yaml:"message_ttl"`
	DeliveryInterval Duration `yaml:"delivery_interval"`
	CleanupInterval  Duration `yaml:"cleanup_interval"`
	FailedThreshold  int      `yaml:"failed_threshold"`
}

type Config struct {
	Listen      string      `yaml:"listen"`
	Redis       Redis       `yaml:"redis"`
	Runtime     Runtime     `yaml:"runtime"`
	Matchmaking Matchmaking `yaml:"matchmaking"`
	Router      Router      `yaml:"router"`
}

func Default() Config {
	return Config{
		Listen: "127.0.0.1:20000",
		Runtime: Runtime{
			IdleTimeout:   Duration(10 * time.Minute),
			SweepInterval: Duration(time.Minute),
			MailboxSize:   64,
		},
	}
}

// Load reads path when it exists; a missing file yields the defaults, any
// other failure is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, quorum.Infrastructuref(err, "config file %s not readable", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, quorum.Validationf("config file %s not parseable: %v", path, err)
	}
	return cfg, nil
}
