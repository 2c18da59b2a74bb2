package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/bot"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/broadcast"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/config"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/cowin"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/store"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/transport/telegram"
	logx "github.com/abhijithasokan/cowin-slot-availability-telegram-bot/pkg/logx"
)

func main() {
	var (
		cfgPath string
		once    bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.BoolVar(&once, "once", false, "run a single broadcast cycle and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath, once); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string, once bool) error {
	// .env is optional; the token can come from the real environment too.
	_ = godotenv.Load()

	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logSvc.Close()
	mgr.SetLogger(log)

	tokenEnv := cfg.Telegram.ResolvedTokenEnv()
	token := os.Getenv(tokenEnv)
	if token == "" {
		return fmt.Errorf("bot token not available in $%s, can't proceed", tokenEnv)
	}

	busyTimeout, err := cfg.Storage.ResolvedBusyTimeout()
	if err != nil {
		return err
	}
	st, err := store.Open(store.Config{Path: cfg.Storage.Path, BusyTimeout: busyTimeout}, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	reqTimeout, err := cfg.Cowin.ResolvedRequestTimeout()
	if err != nil {
		return err
	}
	cacheTTL, err := cfg.Cowin.ResolvedCacheTTL()
	if err != nil {
		return err
	}
	client := cowin.NewClient(cowin.ClientOptions{
		BaseURL:         cfg.Cowin.ResolvedBaseURL(),
		Timeout:         reqTimeout,
		CacheTTL:        cacheTTL,
		CacheMaxEntries: cfg.Cowin.ResolvedCacheMaxEntries(),
		RatePerSec:      cfg.Cowin.RatePerSec,
		Log:             log,
	})
	ref := cowin.NewReference(cfg.Cowin.ResolvedBaseURL(), cfg.Cowin.ReferenceDir, reqTimeout, log)

	pollTimeout, err := cfg.Telegram.ResolvedPollTimeout()
	if err != nil {
		return err
	}
	adapter, err := telegram.New(telegram.Config{Token: token, PollTimeout: pollTimeout}, log)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	resendAfter, err := cfg.Broadcast.ResolvedResendAfter()
	if err != nil {
		return err
	}
	centerGate := cfg.Broadcast.ResolvedCenterGrowth()
	slotGate := cfg.Broadcast.ResolvedSlotGrowth()
	broadcaster := broadcast.New(broadcast.Config{
		Workers:     cfg.Broadcast.ResolvedWorkers(),
		MinCapacity: cfg.Broadcast.ResolvedMinCapacity(),
		TopCenters:  cfg.Broadcast.ResolvedTopCenters(),
		MaxLen:      telegram.MaxMessageLength,
		Engine: broadcast.Engine{
			ResendAfter: resendAfter,
			CenterGate:  broadcast.GrowthGate{Relative: centerGate.Relative, Absolute: centerGate.Absolute},
			SlotGate:    broadcast.GrowthGate{Relative: slotGate.Relative, Absolute: slotGate.Absolute},
		},
	}, client, st, adapter, ref.DistrictName, log)

	if once {
		return broadcaster.RunCycle(ctx)
	}

	botSvc := bot.New(adapter, st, client, ref, cfg.Broadcast.ResolvedMinCapacity(), log)
	botSvc.Register()

	// Serialize cycles: a slow cycle must not overlap the next tick.
	var cycleMu sync.Mutex
	c := cron.New()
	if _, err := c.AddFunc(cfg.Broadcast.ResolvedSchedule(), func() {
		if !cycleMu.TryLock() {
			log.Warn("previous broadcast cycle still running; skipping tick")
			return
		}
		defer cycleMu.Unlock()
		if err := broadcaster.RunCycle(ctx); err != nil {
			log.Error("broadcast cycle failed", logx.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("broadcast schedule %q: %w", cfg.Broadcast.ResolvedSchedule(), err)
	}
	c.Start()
	defer c.Stop()

	// Live-apply logging changes on config edits.
	go func() {
		updates := mgr.Subscribe(1)
		defer mgr.Unsubscribe(updates)
		go func() { _ = mgr.Watch(ctx) }()
		for {
			select {
			case <-ctx.Done():
				return
			case next := <-updates:
				if next == nil {
					return
				}
				logSvc.Apply(logx.Config{
					Level:   next.Logging.Level,
					Console: next.Logging.ConsoleEnabled(),
					File: logx.FileConfig{
						Enabled: next.Logging.File.Enabled,
						Path:    next.Logging.File.Path,
					},
				})
			}
		}
	}()

	go adapter.Start()
	log.Info("bot started", logx.String("schedule", cfg.Broadcast.ResolvedSchedule()))

	<-ctx.Done()
	adapter.Stop()
	return nil
}
