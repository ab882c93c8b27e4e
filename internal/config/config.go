package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/asterisk-callback-bot/internal/render"
)

type Config struct {
	AMI      AMIConfig      `yaml:"ami"`
	Telegram TelegramConfig `yaml:"telegram"`
	HTTP     HTTPConfig     `yaml:"http"`
	Keyboard KeyboardConfig `yaml:"keyboard"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Log      LogConfig      `yaml:"log"`
}

type AMIConfig struct {
	Host           string          `yaml:"host"`
	Port           int             `yaml:"port"`
	Username       string          `yaml:"username"`
	Secret         string          `yaml:"secret"`
	ReconnectDelay time.Duration   `yaml:"reconnect_delay"`
	Originate      OriginateConfig `yaml:"originate"`
}

// OriginateConfig shapes the Originate action sent for each callback.
type OriginateConfig struct {
	ChannelPrefix string        `yaml:"channel_prefix"`
	Context       string        `yaml:"context"`
	CallerID      string        `yaml:"caller_id"`
	Timeout       time.Duration `yaml:"timeout"`
	Priority      int           `yaml:"priority"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
	// ChatID is the single chat receiving missed-call notices.
	ChatID      int64  `yaml:"chat_id"`
	PollTimeout int    `yaml:"poll_timeout"`
	Endpoint    string `yaml:"endpoint"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// KeyboardConfig lists operator extensions, one slice per keyboard row.
type KeyboardConfig struct {
	Rows [][]string `yaml:"rows"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type LogConfig struct {
	Env string `yaml:"env"`
}

func (c *AMIConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// LoadDotEnv loads KEY=value files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := defaults()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		AMI: AMIConfig{
			Host:           "127.0.0.1",
			Port:           5038,
			ReconnectDelay: 5 * time.Second,
			Originate: OriginateConfig{
				ChannelPrefix: "SIP/",
				Context:       "from-internal",
				CallerID:      "Alfa",
				Timeout:       10 * time.Second,
				Priority:      1,
			},
		},
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		HTTP: HTTPConfig{
			Listen: ":8080",
		},
		Keyboard: KeyboardConfig{
			Rows: render.DefaultGrid(),
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "callback-bot",
			TopicPrefix: "asterisk",
		},
		Log: LogConfig{
			Env: "development",
		},
	}
}

// applyEnv lets secrets live outside the YAML file.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("AMI_USERNAME"); ok && v != "" {
		c.AMI.Username = v
	}
	if v, ok := lookup("AMI_SECRET"); ok && v != "" {
		c.AMI.Secret = v
	}
	if v, ok := lookup("TELEGRAM_TOKEN"); ok && v != "" {
		c.Telegram.Token = v
	}
	if v, ok := lookup("TELEGRAM_CHAT_ID"); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID must be an integer, got %q", v)
		}
		c.Telegram.ChatID = id
	}
	if v, ok := lookup("LOG_ENV"); ok && v != "" {
		c.Log.Env = v
	}
	return nil
}

func (c *Config) validate() error {
	if c.AMI.Host == "" {
		return fmt.Errorf("ami.host is required")
	}
	if c.AMI.Port < 1 || c.AMI.Port > 65535 {
		return fmt.Errorf("ami.port must be between 1 and 65535, got %d", c.AMI.Port)
	}
	if c.AMI.Username == "" {
		return fmt.Errorf("ami.username is required")
	}
	if c.AMI.Secret == "" {
		return fmt.Errorf("ami.secret is required")
	}
	if c.AMI.Originate.ChannelPrefix == "" {
		return fmt.Errorf("ami.originate.channel_prefix is required")
	}
	if c.AMI.Originate.Context == "" {
		return fmt.Errorf("ami.originate.context is required")
	}
	if c.AMI.Originate.Timeout <= 0 {
		return fmt.Errorf("ami.originate.timeout must be positive, got %s", c.AMI.Originate.Timeout)
	}
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen is required")
	}
	if err := validateKeyboard(c.Keyboard.Rows); err != nil {
		return err
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required")
		}
		if c.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id is required")
		}
		if c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt.topic_prefix is required")
		}
	}
	return nil
}

// Extensions travel in callback data together with the customer number, so
// they must be short digit strings.
func validateKeyboard(rows [][]string) error {
	if len(rows) != render.GridRows {
		return fmt.Errorf("keyboard.rows must have %d rows, got %d", render.GridRows, len(rows))
	}
	seen := make(map[string]bool)
	for i, row := range rows {
		if len(row) != render.GridColumns {
			return fmt.Errorf("keyboard.rows[%d] must have %d extensions, got %d", i, render.GridColumns, len(row))
		}
		for _, ext := range row {
			if !isExtension(ext) {
				return fmt.Errorf("keyboard.rows[%d]: extension %q must be 1-8 digits", i, ext)
			}
			if seen[ext] {
				return fmt.Errorf("keyboard.rows[%d]: duplicate extension %q", i, ext)
			}
			seen[ext] = true
		}
	}
	return nil
}

func isExtension(s string) bool {
	if len(s) == 0 || len(s) > 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
