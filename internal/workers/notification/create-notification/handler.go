// internal/workers/notification/create-notification/handler.go
package createnotification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "followup-workers/internal/common/errors"
	"followup-workers/internal/common/logger"
	"followup-workers/internal/models"
	"followup-workers/internal/notification"
	"followup-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "create-notification"
)

// Creator persists notifications and runs the fan-out.
type Creator interface {
	Create(ctx context.Context, in *notification.CreateInput) (*models.Notification, error)
}

type Handler struct {
	config    *Config
	creator   Creator
	templates *registry.TemplateRegistry
	logger    logger.Logger
}

func NewHandler(config *Config, creator Creator, templates *registry.TemplateRegistry, log logger.Logger) *Handler {
	if templates == nil {
		templates = registry.Default()
	}
	return &Handler{
		config:    config,
		creator:   creator,
		templates: templates,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
		errorCode := "NOTIFICATION_CREATE_FAILED"
		var stdErr *apperrors.StandardError
		if errors.As(err, &stdErr) {
			errorCode = string(stdErr.Code)
		}
		h.failJob(client, job, errorCode, err.Error())
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	// Schema-check metadata before touching the store so malformed payloads
	// reject without side effects.
	if tmpl, ok := h.templates.Find(input.Type); ok {
		if err := tmpl.ValidateMetadata(input.Metadata); err != nil {
			return nil, apperrors.NewValidationFailedError(err.Error())
		}
	}

	in := &notification.CreateInput{
		UserID:   input.UserID,
		Type:     input.Type,
		Title:    input.Title,
		Message:  input.Message,
		Metadata: input.Metadata,
	}
	if input.RelatedID != "" {
		in.RelatedID = &input.RelatedID
	}

	n, err := h.creator.Create(ctx, in)
	if err != nil {
		return nil, err
	}

	return &Output{
		Success:        true,
		NotificationID: n.ID,
		Notification:   n,
	}, nil
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
