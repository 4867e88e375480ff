// internal/workers/mail/process-queue/handler.go
package processqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"followup-workers/internal/common/logger"
	"followup-workers/internal/mailqueue"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "process-email-queue"
)

// Processor drains due pending emails in FIFO order.
type Processor interface {
	ProcessQueue(ctx context.Context, limit int) (*mailqueue.BatchResult, error)
	GetEmailStats(ctx context.Context) (*mailqueue.Stats, error)
}

type Handler struct {
	config  *Config
	service Processor
	logger  logger.Logger
}

func NewHandler(config *Config, service Processor, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		service: service,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, "QUEUE_PROCESSING_FAILED", err.Error())
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	limit := h.config.BatchLimit
	if input.Limit > 0 {
		limit = input.Limit
	}

	result, err := h.service.ProcessQueue(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Success:   true,
		Attempted: result.Attempted,
		Sent:      result.Sent,
		Failed:    result.Failed,
	}

	// Stats on the output are informational; a stats failure does not undo
	// the processed batch.
	stats, err := h.service.GetEmailStats(ctx)
	if err != nil {
		h.logger.Warn("failed to collect queue stats", map[string]interface{}{
			"error": err,
		})
	} else {
		out.Stats = stats
	}
	return out, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	} else {
		h.logger.Info("job completed successfully", map[string]interface{}{
			"jobKey": job.Key,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
