package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ICEServer is one STUN/TURN entry as it appears in config files.
type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	LogLevel   string        `mapstructure:"log_level"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	// RateLimit bounds relayed messages per peer within RateInterval.
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`

	BaseURL              string        `mapstructure:"base_url"`
	SignalingURL         string        `mapstructure:"signaling_url"`
	ICEServers           []ICEServer   `mapstructure:"ice_servers"`
	ICECandidatePoolSize uint8         `mapstructure:"ice_candidate_pool_size"`
	DialTimeout          time.Duration `mapstructure:"dial_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("rate_limit", 200)
	v.SetDefault("rate_interval", "10s")

	v.SetDefault("base_url", "http://localhost:8080/api")
	v.SetDefault("signaling_url", "ws://localhost:8080/ws")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
		{"urls": []string{"stun:stun1.l.google.com:19302"}},
	})
	v.SetDefault("ice_candidate_pool_size", 10)
	v.SetDefault("dial_timeout", "10s")
}

// Load reads config/config.<CONFIG_ENV>.yaml, MEET_* env vars and, when fs
// is not nil, command line flags (flag names use '-' for '_').
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("MEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("signaling_url", cfg.SignalingURL).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.SignalingURL == "" {
		return errors.New("signaling_url must be set")
	}
	for i, s := range c.ICEServers {
		if err := validateICEServer(s); err != nil {
			return fmt.Errorf("ice_servers[%d]: %w", i, err)
		}
	}
	return nil
}

func validateICEServer(s ICEServer) error {
	if len(s.URLs) == 0 {
		return errors.New("missing urls")
	}
	requiresTurnCreds := false
	for _, raw := range s.URLs {
		url := strings.TrimSpace(raw)
		switch {
		case url == "":
			return errors.New("urls must not contain empty entries")
		case strings.HasPrefix(url, "turn:"), strings.HasPrefix(url, "turns:"):
			requiresTurnCreds = true
		case strings.HasPrefix(url, "stun:"), strings.HasPrefix(url, "stuns:"):
		default:
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
	}
	if requiresTurnCreds && (strings.TrimSpace(s.Username) == "" || strings.TrimSpace(s.Credential) == "") {
		return errors.New("turn urls require username and credential")
	}
	return nil
}

// WebRTC maps the ICE settings onto a pion configuration.
func (c *Config) WebRTC() webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	return webrtc.Configuration{
		ICEServers:           servers,
		ICECandidatePoolSize: c.ICECandidatePoolSize,
	}
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
