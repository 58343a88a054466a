// Command control runs the control-plane daemon: it owns the posting queue,
// evaluates schedules on a fixed tick, dispatches due jobs to the execution
// agent and folds agent reports back into the persisted state.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/DevSkits916/postdeck/internal/bridge"
	"github.com/DevSkits916/postdeck/internal/config"
	"github.com/DevSkits916/postdeck/internal/logger"
	"github.com/DevSkits916/postdeck/internal/metrics"
	"github.com/DevSkits916/postdeck/internal/queue"
	"github.com/DevSkits916/postdeck/internal/scheduler"
	"github.com/DevSkits916/postdeck/internal/schema"
	"github.com/DevSkits916/postdeck/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "control: %v\n", err)
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

	st := store.New(cfg.StatePath, log)
	q, err := queue.New(st, log, cfg.SimilarityThreshold)
	if err != nil {
		return err
	}

	var client *redis.Client
	if cfg.RedisURL != "" {
		client = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer client.Close()
	}

	// Inbound envelopes are queued and handled on a single goroutine so
	// the scheduler sees them in arrival order.
	inbox := make(chan *schema.Message, 64)
	br, err := bridge.New(bridge.Options{
		ChannelName:   cfg.ChannelName,
		Role:          bridge.RoleControl,
		Debug:         cfg.Debug,
		Redis:         client,
		MailboxPoll:   cfg.MailboxPoll,
		PeerURL:       cfg.PeerURL,
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

	collector := &metrics.Collector{}
	sched := scheduler.New(scheduler.Options{
		Queue:        q,
		Sender:       br,
		Metrics:      collector,
		Logger:       log,
		TickInterval: cfg.TickInterval,
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-inbox:
				sched.HandleMessage(ctx, m)
			}
		}
	}()

	// Ask the agent where things stand in case it was already up.
	if err := br.Send(ctx, schema.MustMessage(schema.TypeRequestState, struct{}{})); err != nil {
		log.Warn("initial state request failed", "error", err)
	}

	sched.Start(ctx)

	snap := collector.Snapshot()
	log.Info("control daemon exiting",
		"ticks", snap.Ticks,
		"dispatches", snap.Dispatches,
		"successes", snap.Successes,
		"failures", snap.Failures)
	return nil
}
