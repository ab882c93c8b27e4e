// Command wiretap records manager interface traffic to .raw files that the
// correlator tests replay, and scrubs captures before they are committed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-callback-bot/internal/ami"
	"github.com/sweeney/asterisk-callback-bot/internal/config"
	"github.com/sweeney/asterisk-callback-bot/internal/logging"
)

const defaultEvents = "Bridge,Hangup,OriginateResponse"

func main() {
	host := flag.String("host", "127.0.0.1", "Asterisk AMI host")
	port := flag.Int("port", 5038, "Asterisk AMI port")
	user := flag.String("user", "admin", "AMI username")
	secret := flag.String("secret", "", "AMI secret (or AMI_SECRET in the environment)")
	envFile := flag.String("env-file", ".env", "Optional dotenv file")
	outDir := flag.String("outdir", "testdata/captures", "Output directory for captures")
	events := flag.String("events", defaultEvents, "Comma-separated event types to keep, or \"all\"")
	sanitize := flag.String("sanitize", "", "Sanitize a capture file in-place (keeps .bak)")
	flag.Parse()

	logger, err := logging.New("development")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *sanitize != "" {
		if err := sanitizeFile(*sanitize); err != nil {
			logger.Fatal("sanitize failed", zap.String("file", *sanitize), zap.Error(err))
		}
		logger.Info("sanitized", zap.String("file", *sanitize))
		return
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		logger.Fatal("loading env file", zap.Error(err))
	}
	if *secret == "" {
		*secret = os.Getenv("AMI_SECRET")
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "error: -secret is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	amiCfg := config.AMIConfig{Host: *host, Port: *port}
	opts := ami.ClientOptions{Addr: amiCfg.Addr(), Username: *user, Secret: *secret, Logger: logger}
	if err := capture(ctx, opts, *outDir, newFilter(*events), logger); err != nil {
		logger.Fatal("capture failed", zap.Error(err))
	}
}

// filter selects which blocks are written. Action responses are always kept
// since originate outcomes are correlated through them.
type filter map[string]bool

func newFilter(list string) filter {
	if strings.EqualFold(strings.TrimSpace(list), "all") {
		return nil
	}
	f := filter{}
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			f[strings.ToLower(name)] = true
		}
	}
	return f
}

func (f filter) keep(evt ami.Event) bool {
	if f == nil || evt.IsResponse() {
		return true
	}
	return f[strings.ToLower(evt.Type())]
}

func capture(ctx context.Context, opts ami.ClientOptions, outDir string, keep filter, logger *zap.Logger) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	filename := filepath.Join(outDir, time.Now().Format("20060102-150405")+".raw")
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	logger.Info("streaming events (ctrl+c to stop)", zap.String("file", filename))

	var written int
	client := ami.NewClient(opts)
	err = client.Session(ctx, func(evt ami.Event) {
		if !keep.keep(evt) {
			return
		}
		if _, err := f.Write(evt.Encode()); err != nil {
			logger.Warn("writing event", zap.Error(err))
			return
		}
		written++
	})
	logger.Info("capture finished", zap.Int("events", written))
	return err
}
