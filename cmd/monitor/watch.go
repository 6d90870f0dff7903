// cmd/monitor/watch.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ihydro/internal/alerts"
	awsclient "ihydro/internal/common/aws"
	"ihydro/internal/common/config"
	"ihydro/internal/common/database"
	"ihydro/internal/common/observability"
	"ihydro/internal/monitor"
)

func newWatchCmd(a *app) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the sensor API and print the greenhouse state after every cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	return cmd
}

func (a *app) watch(cmd *cobra.Command, once bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	reg, err := a.thresholds()
	if err != nil {
		return err
	}

	obs := observability.New("ihydro-monitor", a.cfg.Tracing, a.log)
	defer obs.Shutdown()

	opts := []monitor.Option{monitor.WithObservability(obs)}

	var rdb *database.RedisClient
	if a.cfg.Database.Redis.Address != "" {
		err := retryWithBackoff(ctx, func() error {
			var err error
			rdb, err = database.NewRedis(a.cfg.Database.Redis)
			if err != nil {
				return err
			}
			if err := rdb.Ping(ctx); err != nil {
				_ = rdb.Close()
				return err
			}
			return nil
		}, 5, time.Second, a.zapLog, "Redis connection")
		if err != nil {
			a.zapLog.Warn("continuing without redis", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	cfg := monitor.LoadConfig(a.cfg)
	if rdb != nil && cfg.SnapshotTTL > 0 {
		opts = append(opts, monitor.WithSnapshotStore(monitor.NewRedisSnapshotStore(rdb.Client, cfg.SnapshotTTL)))
	}
	if cfg.Alerts {
		notifier, err := a.notifier(ctx, rdb)
		if err != nil {
			return err
		}
		opts = append(opts, monitor.WithNotifier(notifier))
	}

	poller := monitor.NewPoller(cfg, a.client(), reg, a.log, opts...)

	if once {
		if err := poller.Refresh(ctx); err != nil {
			return err
		}
		snap := poller.Snapshot()
		if a.jsonOutput {
			return writeJSON(out, snap)
		}
		renderSnapshot(out, snap, reg)
		if !snap.Online {
			return fmt.Errorf("sensor API offline: %s", snap.LastError)
		}
		return nil
	}

	unsubscribe := poller.Subscribe(func(snap monitor.Snapshot) {
		if a.jsonOutput {
			_ = writeJSON(out, snap)
			return
		}
		renderSnapshot(out, snap, reg)
		fmt.Fprintln(out)
	})
	defer unsubscribe()

	if a.cfg.Metrics.Address != "" {
		srv := healthServer(a.cfg.Metrics.Address, poller)
		go func() {
			a.zapLog.Info("Health/Metrics server listening", zap.String("address", a.cfg.Metrics.Address))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := poller.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.zapLog.Info("Shutdown signal received, stopping poller...")
	poller.Stop()
	return nil
}

// notifier builds the alert notifier. Channels without configuration stay
// disabled; without Redis every evaluation may notify.
func (a *app) notifier(ctx context.Context, rdb *database.RedisClient) (*alerts.Notifier, error) {
	ac := a.cfg.Alerts
	ncfg := &alerts.NotifierConfig{
		Cooldown:     config.GetDuration(ac.Cooldown),
		SMSEnabled:   ac.AWS.SNS.Enabled,
		TopicARN:     ac.AWS.SNS.TopicARN,
		Phone:        ac.AWS.SNS.Phone,
		EmailEnabled: ac.AWS.SES.Enabled,
		FromEmail:    ac.AWS.SES.FromEmail,
		To:           ac.AWS.SES.To,
	}

	var (
		snsClient alerts.SNSService
		sesClient alerts.SESService
	)
	if ncfg.SMSEnabled || ncfg.EmailEnabled {
		awsCfg, err := awsclient.LoadConfig(ctx, ac.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		if ncfg.SMSEnabled {
			snsClient = awsclient.NewSNSClient(awsCfg)
		}
		if ncfg.EmailEnabled {
			sesClient = awsclient.NewSESClient(awsCfg)
		}
	}

	if rdb == nil {
		return alerts.NewNotifier(ncfg, nil, snsClient, sesClient, a.log), nil
	}
	return alerts.NewNotifier(ncfg, rdb.Client, snsClient, sesClient, a.log), nil
}

func healthServer(addr string, poller *monitor.Poller) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		snap := poller.Snapshot()
		status, state := http.StatusOK, "ready"
		if !snap.Online {
			status, state = http.StatusServiceUnavailable, "offline"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     state,
			"last_error": snap.LastError,
			"updated_at": snap.UpdatedAt,
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s abandoned after %d attempts: %w", operationName, i+1, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
