// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	awsclients "followup-workers/internal/common/aws"
	"followup-workers/internal/common/camunda"
	"followup-workers/internal/common/config"
	"followup-workers/internal/common/database"
	"followup-workers/internal/common/directory"
	"followup-workers/internal/common/logger"
	"followup-workers/internal/common/observability"
	"followup-workers/internal/followup"
	"followup-workers/internal/mailqueue"
	"followup-workers/internal/notification"
	"followup-workers/internal/todo"
	"followup-workers/pkg/registry"

	eo "followup-workers/internal/workers/followup/escalate-overdue"
	fa "followup-workers/internal/workers/followup/followup-action"
	pq "followup-workers/internal/workers/mail/process-queue"
	cn "followup-workers/internal/workers/notification/create-notification"
	ta "followup-workers/internal/workers/todo/todo-automation"
	ut "followup-workers/internal/workers/todo/update-todo"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
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
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         time.Duration(cfg.Camunda.RequestTimeout) * time.Millisecond,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zeebeClient := camundaClient.GetClient()
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init AWS clients ---
	sesClient, err := awsclients.NewSESClient(ctx, cfg.Integrations.AWS.Region)
	if err != nil {
		zapLog.Fatal("SES client initialization failed", zap.Error(err))
	}

	var snsClient *awsclients.SNSClient
	if cfg.Integrations.AWS.SNS.Enabled {
		snsClient, err = awsclients.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("SNS client initialization failed", zap.Error(err))
		}
	}

	// --- Load the message-template registry ---
	templates := registry.Default()
	if cfg.Templates.RegistryPath != "" {
		templates, err = registry.LoadRegistry(cfg.Templates.RegistryPath)
		if err != nil {
			zapLog.Fatal("template registry load failed",
				zap.Error(err),
				zap.String("path", cfg.Templates.RegistryPath),
			)
		}
	}

	// --- Wire domain services ---
	dirClient := directory.NewClient(
		cfg.Integrations.Directory.BaseURL,
		cfg.Integrations.Directory.APIKey,
		time.Duration(cfg.Integrations.Directory.Timeout)*time.Millisecond,
		pg.DB,
		rdb.Client,
		time.Duration(cfg.Integrations.Directory.CacheTTL)*time.Second,
	)

	transport := mailqueue.NewSESTransport(sesClient, cfg.Integrations.AWS.SES.FromEmail)
	queue := mailqueue.New(pg.DB, transport, log, mailqueue.Config{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: time.Duration(cfg.Queue.BackoffBaseMinutes) * time.Minute,
		SendTimeout: time.Duration(cfg.Queue.SendTimeout) * time.Millisecond,
	})

	todoService := todo.NewService(pg.DB, log)
	dispatcher := notification.NewDispatcher(
		pg.DB, log, todoService, queue, dirClient, templates, cfg.Queue.MarkAllReadLimit,
	)
	followUpService := followup.NewService(
		pg.DB, log, rdb.Client, queue, dirClient, templates,
		time.Duration(cfg.FollowUps.ReminderCacheTTL)*time.Second,
	)

	zapLog.Info("Domain services wired")

	// --- Register workers ---
	var jobWorkers []*camunda.CamundaWorker
	startWorker := func(taskType string, wcfg config.WorkerConfig, handlerFunc camunda.HandleFunc) {
		if !wcfg.Enabled {
			zapLog.Info("worker disabled", zap.String("taskType", taskType))
			return
		}
		w := camunda.NewWorker(zeebeClient, taskType, wcfg.MaxJobsActive,
			time.Duration(wcfg.Timeout)*time.Millisecond, handlerFunc, obs, zapLog)
		jobWorkers = append(jobWorkers, w)
	}

	if cfg.Workers[fa.TaskType].Enabled {
		handler := fa.NewHandler(
			&fa.Config{
				Timeout: time.Duration(cfg.Workers[fa.TaskType].Timeout) * time.Millisecond,
			},
			followUpService, log,
		)
		startWorker(fa.TaskType, cfg.Workers[fa.TaskType], handler.Handle)
	}

	if cfg.Workers[eo.TaskType].Enabled {
		var sms eo.SMSPublisher
		if snsClient != nil {
			sms = snsClient
		}
		handler := eo.NewHandler(
			&eo.Config{
				Timeout:      time.Duration(cfg.Workers[eo.TaskType].Timeout) * time.Millisecond,
				DigestWindow: time.Duration(cfg.FollowUps.DigestWindowMinutes) * time.Minute,
				SMSEnabled:   cfg.Integrations.AWS.SNS.Enabled,
			},
			pg.DB, followUpService, dispatcher, dirClient, dirClient, todoService, sms, log,
		)
		startWorker(eo.TaskType, cfg.Workers[eo.TaskType], handler.Handle)
	}

	if cfg.Workers[cn.TaskType].Enabled {
		handler := cn.NewHandler(
			&cn.Config{
				Timeout: time.Duration(cfg.Workers[cn.TaskType].Timeout) * time.Millisecond,
			},
			dispatcher, templates, log,
		)
		startWorker(cn.TaskType, cfg.Workers[cn.TaskType], handler.Handle)
	}

	if cfg.Workers[ta.TaskType].Enabled {
		handler := ta.NewHandler(
			&ta.Config{
				Timeout: time.Duration(cfg.Workers[ta.TaskType].Timeout) * time.Millisecond,
			},
			todoService, log,
		)
		startWorker(ta.TaskType, cfg.Workers[ta.TaskType], handler.Handle)
	}

	if cfg.Workers[ut.TaskType].Enabled {
		handler := ut.NewHandler(
			&ut.Config{
				Timeout: time.Duration(cfg.Workers[ut.TaskType].Timeout) * time.Millisecond,
			},
			todoService, log,
		)
		startWorker(ut.TaskType, cfg.Workers[ut.TaskType], handler.Handle)
	}

	if cfg.Workers[pq.TaskType].Enabled {
		handler := pq.NewHandler(
			&pq.Config{
				Timeout:    time.Duration(cfg.Workers[pq.TaskType].Timeout) * time.Millisecond,
				BatchLimit: cfg.Queue.DefaultBatchLimit,
			},
			queue, log,
		)
		startWorker(pq.TaskType, cfg.Workers[pq.TaskType], handler.Handle)
	}

	zapLog.Info("All workers registered")

	// --- Health/Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			status := "healthy"
			code := http.StatusOK
			if err := pg.Ping(r.Context()); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			} else if err := camundaClient.HealthCheck(r.Context()); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
			w.WriteHeader(code)
			json.NewEncoder(w).Encode(map[string]string{
				"status": status,
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	for _, w := range jobWorkers {
		w.Stop()
	}

	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}
