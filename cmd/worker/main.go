package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"auth-notify-service/internal/factory"
	"auth-notify-service/internal/util"
)

func main() {
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	worker, err := f.NewWorker()
	if err != nil {
		util.Fatal("Failed to initialize worker", util.ErrorField(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	cfg := f.Config()
	util.Info("Task worker started",
		util.String("environment", cfg.Environment),
		util.String("topic", cfg.Kafka.TaskTopic),
		util.String("group_id", cfg.Kafka.GroupID),
		util.Int("lanes", cfg.Bucketing.TaskLanes),
	)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		util.Error("Task worker stopped with error", util.ErrorField(err))
		return
	}
	util.Info("Task worker stopped")
}
