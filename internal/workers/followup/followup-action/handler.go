// internal/workers/followup/followup-action/handler.go
package followupaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "followup-workers/internal/common/errors"
	"followup-workers/internal/common/logger"
	"followup-workers/internal/followup"
	"followup-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "followup-action"
)

// Transitions is the slice of the follow-up service this worker needs.
type Transitions interface {
	Complete(ctx context.Context, id, userID, reason string) (*models.FollowUp, error)
	MarkNoResponse(ctx context.Context, id, userID string) (*models.FollowUp, error)
	Snooze(ctx context.Context, id, userID string, newDueDate time.Time) (*models.FollowUp, error)
	SendReminderEmail(ctx context.Context, id, userID string) (bool, error)
	Get(ctx context.Context, id, userID string) (*models.FollowUp, error)
}

var _ Transitions = (*followup.Service)(nil)

type Handler struct {
	config  *Config
	service Transitions
	logger  logger.Logger
}

func NewHandler(config *Config, service Transitions, log logger.Logger) *Handler {
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
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		errorCode := "UNKNOWN_ERROR"
		retries := int32(0)
		var stdErr *apperrors.StandardError
		if errors.As(err, &stdErr) {
			errorCode = string(stdErr.Code)
			retries = int32(apperrors.GetRetryCount(stdErr.Code))
		}
		h.failJob(client, job, errorCode, err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.FollowUpID == "" {
		return nil, apperrors.NewValidationFailedError("followUpId is required")
	}
	if input.UserID == "" {
		return nil, apperrors.NewValidationFailedError("userId is required")
	}

	switch input.Action {
	case ActionComplete:
		f, err := h.service.Complete(ctx, input.FollowUpID, input.UserID, input.Reason)
		if err != nil {
			return nil, err
		}
		return &Output{Success: true, Action: input.Action, FollowUp: f}, nil

	case ActionMarkNoResponse:
		f, err := h.service.MarkNoResponse(ctx, input.FollowUpID, input.UserID)
		if err != nil {
			return nil, err
		}
		return &Output{Success: true, Action: input.Action, FollowUp: f}, nil

	case ActionSnooze:
		until, err := time.Parse(time.RFC3339, input.SnoozeUntil)
		if err != nil {
			return nil, apperrors.NewValidationFailedError(fmt.Sprintf("snoozeUntil must be RFC3339: %v", err))
		}
		f, err := h.service.Snooze(ctx, input.FollowUpID, input.UserID, until)
		if err != nil {
			return nil, err
		}
		return &Output{Success: true, Action: input.Action, FollowUp: f}, nil

	case ActionSendReminder:
		sent, err := h.service.SendReminderEmail(ctx, input.FollowUpID, input.UserID)
		if err != nil {
			return nil, err
		}
		f, err := h.service.Get(ctx, input.FollowUpID, input.UserID)
		if err != nil {
			return nil, err
		}
		return &Output{Success: true, Action: input.Action, FollowUp: f, ReminderSent: sent}, nil

	default:
		return nil, apperrors.NewValidationFailedError(fmt.Sprintf("unknown action: %s", input.Action))
	}
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

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string, retries int32) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
		"retries":      retries,
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
