// Command agent runs the execution daemon: it accepts one job dispatch at a
// time from the control plane, walks the publishing steps with humanized
// pacing and reports every status transition back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/DevSkits916/postdeck/internal/agent"
	"github.com/DevSkits916/postdeck/internal/bridge"
	"github.com/DevSkits916/postdeck/internal/config"
	"github.com/DevSkits916/postdeck/internal/logger"
	"github.com/DevSkits916/postdeck/internal/schema"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Close()
	logger.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var client *redis.Client
	if cfg.RedisURL != "" {
		client = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer client.Close()
	}

	inbox := make(chan *schema.Message, 64)
	br, err := bridge.New(bridge.Options{
		ChannelName:   cfg.ChannelName,
		Role:          bridge.RoleAgent,
		Debug:         cfg.Debug,
		Redis:         client,
		MailboxPoll:   cfg.MailboxPoll,
		ListenAddr:    cfg.AgentListenAddr,
		Origin:        cfg.Origin,
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        log,
		OnMessage: func(m *schema.Message) {
			select {
			case inbox <- m:
			default:
				log.Warn("inbox full, envelope dropped", "message_id", m.ID, "type", string(m.Type))
			}
		},
	})
	if err != nil {
		return err
	}
	defer br.Close()

	if addr := br.DirectAddr(); addr != "" {
		log.Info("direct channel listening", "addr", addr)
	}

	runner := agent.New(agent.Options{
		Poster:     &agent.DryRunPoster{},
		Sender:     br,
		Logger:     log,
		RetryLimit: cfg.StepRetryLimit,
		BaseDelay:  cfg.StepBaseDelay,
		ThinkMin:   cfg.ThinkMin,
		ThinkMax:   cfg.ThinkMax,
	})

	if err := runner.Announce(ctx); err != nil {
		log.Warn("startup announcement failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			runner.Wait()
			// Best-effort goodbye so the control plane shows the agent
			// as offline right away.
			bye := schema.MustMessage(schema.TypeState, schema.StatePayload{Connected: false})
			if err := br.Send(context.Background(), bye); err != nil {
				log.Warn("shutdown announcement failed", "error", err)
			}
			log.Info("agent daemon exiting")
			return nil
		case m := <-inbox:
			runner.HandleMessage(ctx, m)
		}
	}
}
