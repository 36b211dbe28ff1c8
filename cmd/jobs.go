package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/service"
	"github.com/vibast-solutions/ms-go-payment-gateway/config"
)

var (
	workerMode bool
)

var deferredCmd = &cobra.Command{
	Use:   "deferred",
	Short: "Run deferred-payment related commands",
}

var deferredReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-attempt payments whose latest recorded event deferred them",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"deferred_replay",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.DeferredReplayInterval },
			func(ctx context.Context, job *service.DeferredReplayJob) error {
				return job.RunBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(deferredCmd)
	deferredCmd.AddCommand(deferredReplayCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(ctx context.Context, job *service.DeferredReplayJob) error,
) {
	components, cleanup := mustCreateGateway(false)
	defer cleanup()

	job := service.NewDeferredReplayJob(
		components.store,
		components.processor,
		components.registry,
		components.cfg.Jobs.BatchSize,
	)

	if workerMode {
		runWorker(name, intervalResolver(components.cfg), job, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(ctx, job) })
}

func runWorker(
	name string,
	interval time.Duration,
	job *service.DeferredReplayJob,
	fn func(ctx context.Context, job *service.DeferredReplayJob) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(ctx, job) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(ctx, job) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
