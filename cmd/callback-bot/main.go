package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/asterisk-callback-bot/internal/ami"
	"github.com/sweeney/asterisk-callback-bot/internal/config"
	"github.com/sweeney/asterisk-callback-bot/internal/correlator"
	"github.com/sweeney/asterisk-callback-bot/internal/logging"
	"github.com/sweeney/asterisk-callback-bot/internal/messenger"
	"github.com/sweeney/asterisk-callback-bot/internal/publisher"
	"github.com/sweeney/asterisk-callback-bot/internal/render"
	"github.com/sweeney/asterisk-callback-bot/internal/telegram"
	"github.com/sweeney/asterisk-callback-bot/internal/webhook"
)

const (
	publishTimeout = 5 * time.Second
	chatTimeout    = 15 * time.Second
)

func main() {
	configPath := flag.String("config", "/etc/callback-bot/callback-bot.yaml", "Path to config file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with secrets")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("loading env file: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Env)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync()
	routeLibraryLogs(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
		cancel()
	}()

	var pub publisher.Publisher = publisher.Nop{}
	if cfg.MQTT.Enabled {
		p, err := publisher.NewMQTTPublisher(publisher.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			QoS:      1,
			Logger:   logger.Named("mqtt"),
		})
		if err != nil {
			logger.Fatal("connecting to MQTT", zap.Error(err))
		}
		pub = p
		logger.Info("connected to MQTT broker", zap.String("broker", cfg.MQTT.Broker))
	}
	defer pub.Close()

	if err := run(ctx, cfg, logger, pub); err != nil && ctx.Err() == nil {
		logger.Fatal("callback bot stopped", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// routeLibraryLogs sends the stdlib-style loggers of the stdlib and of the
// MQTT and Telegram clients through zap.
func routeLibraryLogs(logger *zap.Logger) {
	zap.RedirectStdLog(logger)
	mqtt.ERROR = zap.NewStdLog(logger.Named("paho"))
	mqtt.CRITICAL = mqtt.ERROR
	_ = tgbotapi.SetLogger(zap.NewStdLog(logger.Named("tgbotapi")))
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, pub publisher.Publisher) error {
	botOpts := []telegram.Option{
		telegram.WithPollTimeout(cfg.Telegram.PollTimeout),
		telegram.WithRequestTimeout(chatTimeout),
		telegram.WithLogger(logger.Named("telegram")),
	}
	if cfg.Telegram.Endpoint != "" {
		botOpts = append(botOpts, telegram.WithEndpoint(cfg.Telegram.Endpoint))
	}
	bot, err := telegram.New(cfg.Telegram.Token, botOpts...)
	if err != nil {
		return err
	}

	outbox := messenger.NewOutbox(bot,
		messenger.WithTimeout(chatTimeout),
		messenger.WithLogger(logger.Named("outbox")))
	defer outbox.Close()

	lifecycle := publisher.NewAsync(pub,
		publisher.WithTimeout(publishTimeout),
		publisher.WithLogger(logger.Named("publish")))
	defer lifecycle.Close()

	client := ami.NewClient(ami.ClientOptions{
		Addr:           cfg.AMI.Addr(),
		Username:       cfg.AMI.Username,
		Secret:         cfg.AMI.Secret,
		ReconnectDelay: cfg.AMI.ReconnectDelay,
		Logger:         logger.Named("ami"),
	})
	originator := ami.NewOriginator(client, ami.OriginateOptions{
		ChannelPrefix: cfg.AMI.Originate.ChannelPrefix,
		Context:       cfg.AMI.Originate.Context,
		CallerID:      cfg.AMI.Originate.CallerID,
		Timeout:       cfg.AMI.Originate.Timeout,
		Priority:      cfg.AMI.Originate.Priority,
	})

	corr := correlator.New(correlator.Deps{
		ChatID:    cfg.Telegram.ChatID,
		Renderer:  render.New(cfg.Keyboard.Rows),
		Messenger: outbox,
		Dialer:    originator,
	}, correlator.WithLogger(logger.Named("correlator")))

	hooks := webhook.NewHandler(corr, corr.Registry(), logger.Named("webhook"))
	srv := &http.Server{
		Addr:         cfg.HTTP.Listen,
		Handler:      hooks.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	submit := func(ctx context.Context, evt correlator.Event) {
		if err := corr.Submit(ctx, evt); err != nil && ctx.Err() == nil {
			logger.Warn("dropping event", zap.Error(err))
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return outbox.Run(ctx)
	})

	g.Go(func() error {
		return lifecycle.Run(ctx)
	})

	g.Go(func() error {
		return corr.Run(ctx, func(t correlator.Transition) {
			if err := publishTransition(ctx, lifecycle, cfg.MQTT.TopicPrefix, t); err != nil {
				logger.Warn("transition not published", zap.String("state", string(t.State)),
					zap.Stringer("key", t.Key), zap.Error(err))
			}
		})
	})

	g.Go(func() error {
		return client.Run(ctx, func(evt ami.Event) {
			submit(ctx, correlator.Telephony{Event: evt})
		})
	})

	g.Go(func() error {
		return bot.Poll(ctx, func(cb telegram.Callback) {
			if cb.Ref.ChatID != cfg.Telegram.ChatID {
				logger.Debug("ignoring callback from another chat", zap.Int64("chat_id", cb.Ref.ChatID))
				return
			}
			submit(ctx, correlator.Selection{
				InteractionID: cb.ID,
				Message:       cb.Ref,
				MessageText:   cb.Text,
				Data:          cb.Data,
			})
		})
	})

	g.Go(func() error {
		logger.Info("listening for missed call notifications", zap.String("addr", cfg.HTTP.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
