package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	config "github.com/LEOK66/Modo-sub004/app/configs"
	"github.com/LEOK66/Modo-sub004/app/core/bus"
	"github.com/LEOK66/Modo-sub004/app/core/coordinator"
	"github.com/LEOK66/Modo-sub004/app/core/db"
	"github.com/LEOK66/Modo-sub004/app/core/dispatch"
	"github.com/LEOK66/Modo-sub004/app/core/gateway"
	"github.com/LEOK66/Modo-sub004/app/core/plansync"
	"github.com/LEOK66/Modo-sub004/app/core/scheduler"
	"github.com/LEOK66/Modo-sub004/app/core/session"
	"github.com/LEOK66/Modo-sub004/app/core/taskstore"
	"github.com/LEOK66/Modo-sub004/app/pkg/logger"
)

func main() {
	cfgManager, err := config.NewManager(config.DefaultPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := cfgManager.Get()

	if err := logger.Init(cfg.LogDir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("Modo Coordinator Starting...")

	database, err := db.NewSQLiteDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to initialize DB: %v", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("Database initialized successfully")

	store := taskstore.NewSQLiteStore(database)

	gw, gwErr := gateway.NewOpenAIGateway(cfg.Model)
	var planSource dispatch.PlanSource
	if gwErr != nil {
		logger.Error("Model gateway unavailable, using static plan templates: %v", gwErr)
		planSource = gateway.StaticPlanSource{}
	} else {
		planSource = gateway.NewModelPlanSource(gw)
	}

	b := bus.New()
	dedup := dispatch.NewSessionDedup()
	dispatcher := dispatch.NewDispatcher(b)
	dispatcher.Register(dispatch.NewCreateHandler(b, store, dedup))
	dispatcher.Register(dispatch.NewQueryHandler(b, store))
	dispatcher.Register(dispatch.NewUpdateHandler(b, store))
	dispatcher.Register(dispatch.NewDeleteHandler(b, store))
	dispatcher.Register(dispatch.NewPlanHandler(b, store, planSource, dedup,
		cfg.Coordinator.DefaultPlanDays, cfg.Coordinator.MaxPlanDays))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord := coordinator.New(b, dispatcher, coordinator.Options{
		ResponseTimeout: time.Duration(cfg.Coordinator.ResponseTimeoutSec) * time.Second,
		DispatchBuffer:  cfg.Coordinator.DispatchBuffer,
	})
	if err := coord.Start(ctx); err != nil {
		logger.Error("Failed to start coordinator: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := coord.Stop(3 * time.Second); err != nil {
			logger.Error("Coordinator shutdown: %v", err)
		}
	}()

	jobScheduler := scheduler.New()
	if cfg.Sync.Enabled {
		syncJob := plansync.NewJob(store, coord)
		err := jobScheduler.Register(scheduler.JobSpec{
			Name:       syncJob.Name(),
			Interval:   time.Duration(cfg.Sync.IntervalSec) * time.Second,
			Timeout:    time.Duration(cfg.Sync.TimeoutSec) * time.Second,
			RunOnStart: true,
			Run:        syncJob.Run,
		})
		if err != nil {
			logger.Error("Failed to register plan sync job: %v", err)
			os.Exit(1)
		}
	}
	if err := jobScheduler.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := jobScheduler.Stop(3 * time.Second); err != nil {
			logger.Error("Scheduler shutdown: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if gwErr != nil {
		logger.Info("Chat disabled without a model; plan sync keeps running. Press Ctrl+C to exit.")
		<-sigCh
		logger.Info("Shutting down...")
		return
	}

	chat := session.New(gw, coord)
	fmt.Println("Modo is ready. Tell it about your day, or press Ctrl+C to exit.")
	go runChatLoop(ctx, chat, cancel)

	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")
}

func runChatLoop(ctx context.Context, chat *session.Session, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			cancel()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			cancel()
			return
		}

		reply, err := chat.HandleUserMessage(ctx, line)
		if err != nil {
			logger.Error("Turn failed: %v", err)
			fmt.Println("Something went wrong, please try again.")
			continue
		}
		if reply != "" {
			fmt.Println(reply)
		}
	}
}
