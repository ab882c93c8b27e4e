package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const base = `
ami:
  username: admin
  secret: s3cret
telegram:
  token: "123:abc"
  chat_id: -1001
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv blanks the overrides so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"AMI_USERNAME", "AMI_SECRET", "TELEGRAM_TOKEN", "TELEGRAM_CHAT_ID", "LOG_ENV"} {
		t.Setenv(k, "")
	}
}

func TestLoadValidConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
ami:
  host: 192.168.1.200
  port: 5038
  username: admin
  secret: s3cret
  originate:
    channel_prefix: PJSIP/
    context: callbacks
    caller_id: Office
    timeout: 30s
telegram:
  token: "123:abc"
  chat_id: -1001
  poll_timeout: 30
http:
  listen: 127.0.0.1:9000
keyboard:
  rows:
    - ["101", "102", "103", "104"]
    - ["201", "202", "203", "204"]
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  client_id: test
  topic_prefix: pbx
log:
  env: production
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AMI.Addr() != "192.168.1.200:5038" {
		t.Errorf("expected addr=192.168.1.200:5038, got %s", cfg.AMI.Addr())
	}
	if cfg.AMI.Originate.ChannelPrefix != "PJSIP/" {
		t.Errorf("expected channel_prefix=PJSIP/, got %s", cfg.AMI.Originate.ChannelPrefix)
	}
	if cfg.AMI.Originate.Timeout != 30*time.Second {
		t.Errorf("expected timeout=30s, got %s", cfg.AMI.Originate.Timeout)
	}
	if cfg.AMI.Originate.Priority != 1 {
		t.Errorf("expected default priority=1, got %d", cfg.AMI.Originate.Priority)
	}
	if cfg.Telegram.ChatID != -1001 {
		t.Errorf("expected chat_id=-1001, got %d", cfg.Telegram.ChatID)
	}
	if cfg.HTTP.Listen != "127.0.0.1:9000" {
		t.Errorf("expected listen=127.0.0.1:9000, got %s", cfg.HTTP.Listen)
	}
	want := [][]string{{"101", "102", "103", "104"}, {"201", "202", "203", "204"}}
	if !reflect.DeepEqual(cfg.Keyboard.Rows, want) {
		t.Errorf("expected rows=%v, got %v", want, cfg.Keyboard.Rows)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.TopicPrefix != "pbx" {
		t.Errorf("expected enabled mqtt with topic_prefix=pbx, got %+v", cfg.MQTT)
	}
	if cfg.Log.Env != "production" {
		t.Errorf("expected log env=production, got %s", cfg.Log.Env)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, base))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AMI.Host != "127.0.0.1" {
		t.Errorf("expected default host=127.0.0.1, got %s", cfg.AMI.Host)
	}
	if cfg.AMI.Port != 5038 {
		t.Errorf("expected default port=5038, got %d", cfg.AMI.Port)
	}
	if cfg.AMI.ReconnectDelay != 5*time.Second {
		t.Errorf("expected default reconnect_delay=5s, got %s", cfg.AMI.ReconnectDelay)
	}
	o := cfg.AMI.Originate
	if o.ChannelPrefix != "SIP/" || o.Context != "from-internal" || o.CallerID != "Alfa" || o.Timeout != 10*time.Second {
		t.Errorf("unexpected originate defaults: %+v", o)
	}
	if cfg.Telegram.PollTimeout != 60 {
		t.Errorf("expected default poll_timeout=60, got %d", cfg.Telegram.PollTimeout)
	}
	if cfg.HTTP.Listen != ":8080" {
		t.Errorf("expected default listen=:8080, got %s", cfg.HTTP.Listen)
	}
	if len(cfg.Keyboard.Rows) != 2 || len(cfg.Keyboard.Rows[0]) != 4 {
		t.Errorf("expected default 2x4 keyboard, got %v", cfg.Keyboard.Rows)
	}
	if cfg.MQTT.Enabled {
		t.Error("expected mqtt disabled by default")
	}
	if cfg.MQTT.ClientID != "callback-bot" {
		t.Errorf("expected default client_id, got %s", cfg.MQTT.ClientID)
	}
	if cfg.MQTT.TopicPrefix != "asterisk" {
		t.Errorf("expected default topic_prefix=asterisk, got %s", cfg.MQTT.TopicPrefix)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AMI_SECRET", "from-env")
	t.Setenv("TELEGRAM_TOKEN", "999:xyz")
	t.Setenv("TELEGRAM_CHAT_ID", "-42")

	cfg, err := Load(writeConfig(t, `
ami:
  username: admin
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AMI.Secret != "from-env" {
		t.Errorf("expected secret from env, got %s", cfg.AMI.Secret)
	}
	if cfg.Telegram.Token != "999:xyz" {
		t.Errorf("expected token from env, got %s", cfg.Telegram.Token)
	}
	if cfg.Telegram.ChatID != -42 {
		t.Errorf("expected chat_id=-42, got %d", cfg.Telegram.ChatID)
	}
}

func TestLoadBadChatIDEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_CHAT_ID", "general")

	_, err := Load(writeConfig(t, base))
	if err == nil || !strings.Contains(err.Error(), "TELEGRAM_CHAT_ID") {
		t.Fatalf("expected TELEGRAM_CHAT_ID error, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("AMI_USERNAME")
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("AMI_USERNAME=dotenv-user\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), envFile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("AMI_USERNAME"); got != "dotenv-user" {
		t.Errorf("expected AMI_USERNAME=dotenv-user, got %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, `{{{invalid`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string
		errMsg string
	}{
		{"empty username", `
ami:
  secret: s3cret
`, "ami.username is required"},
		{"empty secret", `
ami:
  username: admin
`, "ami.secret is required"},
		{"port zero", `
ami:
  port: 0
  username: admin
  secret: s3cret
`, "ami.port must be between 1 and 65535, got 0"},
		{"empty host", `
ami:
  host: ""
  username: admin
  secret: s3cret
`, "ami.host is required"},
		{"zero originate timeout", `
ami:
  username: admin
  secret: s3cret
  originate:
    timeout: 0s
`, "ami.originate.timeout must be positive, got 0s"},
		{"empty token", `
ami:
  username: admin
  secret: s3cret
`, "telegram.token is required"},
		{"missing chat", `
ami:
  username: admin
  secret: s3cret
telegram:
  token: "1:a"
`, "telegram.chat_id is required"},
		{"non-digit extension", base + `
keyboard:
  rows: [["101", "front", "103", "104"], ["201", "202", "203", "204"]]
`, `keyboard.rows[0]: extension "front" must be 1-8 digits`},
		{"duplicate extension", base + `
keyboard:
  rows: [["101", "102", "103", "104"], ["201", "101", "203", "204"]]
`, `keyboard.rows[1]: duplicate extension "101"`},
		{"short row", base + `
keyboard:
  rows: [["101", "102", "103", "104"], ["201"]]
`, "keyboard.rows[1] must have 4 extensions, got 1"},
		{"long row", base + `
keyboard:
  rows: [["101", "102", "103", "104", "105"], ["201", "202", "203", "204"]]
`, "keyboard.rows[0] must have 4 extensions, got 5"},
		{"single row", base + `
keyboard:
  rows: [["101", "102", "103", "104"]]
`, "keyboard.rows must have 2 rows, got 1"},
		{"three rows", base + `
keyboard:
  rows: [["101", "102", "103", "104"], ["201", "202", "203", "204"], ["301", "302", "303", "304"]]
`, "keyboard.rows must have 2 rows, got 3"},
		{"enabled mqtt without broker", base + `
mqtt:
  enabled: true
  broker: ""
`, "mqtt.broker is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := writeConfig(t, tt.config)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}
