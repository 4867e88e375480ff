// internal/workers/followup/escalate-overdue/handler.go
package escalateoverdue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"followup-workers/internal/common/directory"
	"followup-workers/internal/common/logger"
	"followup-workers/internal/common/metrics"
	"followup-workers/internal/followup"
	"followup-workers/internal/models"
	"followup-workers/internal/notification"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "escalate-overdue-followups"
)

// Escalator performs the guarded escalation transition.
type Escalator interface {
	Escalate(ctx context.Context, id, managerID string) (*models.FollowUp, error)
}

// Notifier fans out notifications without propagating failures.
type Notifier interface {
	CreateQuiet(ctx context.Context, in *notification.CreateInput) *models.Notification
}

// Expirer sweeps overdue todos as part of the same tick.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// SMSPublisher is the SNS surface used for high-priority digest texts.
type SMSPublisher interface {
	Publish(ctx context.Context, input *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Handler struct {
	config   *Config
	db       *sql.DB
	service  Escalator
	notifier Notifier
	resolver directory.ManagerResolver
	contacts directory.ContactLookup
	todos    Expirer
	sms      SMSPublisher
	logger   logger.Logger

	Now func() time.Time
}

func NewHandler(
	config *Config,
	db *sql.DB,
	service Escalator,
	notifier Notifier,
	resolver directory.ManagerResolver,
	contacts directory.ContactLookup,
	todos Expirer,
	sms SMSPublisher,
	log logger.Logger,
) *Handler {
	return &Handler{
		config:   config,
		db:       db,
		service:  service,
		notifier: notifier,
		resolver: resolver,
		contacts: contacts,
		todos:    todos,
		sms:      sms,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
		Now:      time.Now,
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
		h.failJob(client, job, "ESCALATION_SWEEP_FAILED", err.Error())
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	now := h.Now().UTC()
	if input.AsOf != "" {
		parsed, err := time.Parse(time.RFC3339, input.AsOf)
		if err != nil {
			return nil, fmt.Errorf("asOf must be RFC3339: %w", err)
		}
		now = parsed.UTC()
	}

	candidates, err := h.findOverdue(ctx, now)
	if err != nil {
		return nil, err
	}

	out := &Output{Success: true}
	for _, row := range candidates {
		if err := h.escalateOne(ctx, row); err != nil {
			if errors.Is(err, followup.ErrNotEligible) || errors.Is(err, directory.ErrNoManager) {
				out.Skipped++
				continue
			}
			// One bad row must not starve the rest of the sweep.
			h.logger.Error("escalation failed, continuing sweep", map[string]interface{}{
				"error":      err,
				"followUpId": row.ID,
			})
			out.Skipped++
			continue
		}
		out.Escalated++
		metrics.FollowUpsEscalated.Inc()
	}

	out.DigestsSent, err = h.sendDigests(ctx, now)
	if err != nil {
		// Digests are best-effort; the escalations themselves committed.
		h.logger.Error("digest pass failed", map[string]interface{}{"error": err})
	}

	expired, err := h.todos.ExpireOverdue(ctx)
	if err != nil {
		h.logger.Error("todo expiry sweep failed", map[string]interface{}{"error": err})
	} else {
		out.TodosExpired = expired
	}

	out.CompletedAt = h.Now().UTC()
	h.logger.Info("sweep completed", map[string]interface{}{
		"escalated":    out.Escalated,
		"skipped":      out.Skipped,
		"digestsSent":  out.DigestsSent,
		"todosExpired": out.TodosExpired,
	})
	return out, nil
}

func (h *Handler) findOverdue(ctx context.Context, now time.Time) ([]overdueRow, error) {
	query := `
		SELECT id, user_id, client_name, email_subject, manager_id
		FROM follow_ups
		WHERE status = 'pending' AND escalated = false AND due_date < $1
		ORDER BY due_date ASC`

	rows, err := h.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("find overdue follow-ups: %w", err)
	}
	defer rows.Close()

	var out []overdueRow
	for rows.Next() {
		var r overdueRow
		var managerID sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &r.ClientName, &r.EmailSubject, &managerID); err != nil {
			return nil, fmt.Errorf("scan overdue follow-up: %w", err)
		}
		if managerID.Valid {
			r.ManagerID = &managerID.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (h *Handler) escalateOne(ctx context.Context, row overdueRow) error {
	managerID := ""
	if row.ManagerID != nil {
		managerID = *row.ManagerID
	} else {
		resolved, err := h.resolver.ResolveManager(ctx, row.UserID)
		if err != nil {
			return err
		}
		managerID = resolved
	}

	f, err := h.service.Escalate(ctx, row.ID, managerID)
	if err != nil {
		return err
	}

	related := f.ID
	h.notifier.CreateQuiet(ctx, &notification.CreateInput{
		UserID:    f.UserID,
		Type:      models.NotificationTypeEscalation,
		Title:     fmt.Sprintf("Follow-up escalated: %s", f.ClientName),
		Message:   fmt.Sprintf("Your follow-up for %s (%s) is overdue and has been escalated to your manager.", f.ClientName, f.EmailSubject),
		RelatedID: &related,
		Metadata: map[string]interface{}{
			"clientName":   f.ClientName,
			"emailSubject": f.EmailSubject,
			"managerId":    managerID,
		},
	})
	h.notifier.CreateQuiet(ctx, &notification.CreateInput{
		UserID:    managerID,
		Type:      models.NotificationTypeEscalation,
		Title:     fmt.Sprintf("Overdue follow-up needs review: %s", f.ClientName),
		Message:   fmt.Sprintf("A follow-up owned by one of your reports for %s (%s) is overdue.", f.ClientName, f.EmailSubject),
		RelatedID: &related,
		Metadata: map[string]interface{}{
			"clientName":   f.ClientName,
			"emailSubject": f.EmailSubject,
			"ownerId":      f.UserID,
		},
	})
	return nil
}

// sendDigests groups escalations inside the window by manager and sends one
// digest notification per manager.
func (h *Handler) sendDigests(ctx context.Context, now time.Time) (int, error) {
	since := now.Add(-h.config.DigestWindow)
	query := `
		SELECT manager_id, client_name
		FROM follow_ups
		WHERE escalated = true AND manager_id IS NOT NULL AND escalation_date >= $1
		ORDER BY manager_id, escalation_date ASC`

	rows, err := h.db.QueryContext(ctx, query, since)
	if err != nil {
		return 0, fmt.Errorf("collect digest rows: %w", err)
	}
	defer rows.Close()

	byManager := make(map[string]*digestEntry)
	for rows.Next() {
		var managerID, clientName string
		if err := rows.Scan(&managerID, &clientName); err != nil {
			return 0, fmt.Errorf("scan digest row: %w", err)
		}
		entry := byManager[managerID]
		if entry == nil {
			entry = &digestEntry{}
			byManager[managerID] = entry
		}
		entry.Count++
		entry.Clients = append(entry.Clients, clientName)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	managers := make([]string, 0, len(byManager))
	for id := range byManager {
		managers = append(managers, id)
	}
	sort.Strings(managers)

	sent := 0
	for _, managerID := range managers {
		entry := byManager[managerID]
		n := h.notifier.CreateQuiet(ctx, &notification.CreateInput{
			UserID:  managerID,
			Type:    models.NotificationTypeEscalationDigest,
			Title:   fmt.Sprintf("Escalation digest: %d overdue follow-ups", entry.Count),
			Message: fmt.Sprintf("Escalated in the last hour: %s", strings.Join(entry.Clients, ", ")),
			Metadata: map[string]interface{}{
				"count":   entry.Count,
				"clients": entry.Clients,
			},
		})
		if n == nil {
			continue
		}
		sent++
		metrics.EscalationDigestsSent.Inc()
		h.sendDigestSMS(ctx, managerID, entry)
	}
	return sent, nil
}

func (h *Handler) sendDigestSMS(ctx context.Context, managerID string, entry *digestEntry) {
	if !h.config.SMSEnabled || h.sms == nil {
		return
	}
	contact, err := h.contacts.Contact(ctx, managerID)
	if err != nil || contact.Phone == "" {
		return
	}
	msg := fmt.Sprintf("%d follow-ups escalated to you in the last hour. Check your notifications.", entry.Count)
	_, err = h.sms.Publish(ctx, &sns.PublishInput{
		PhoneNumber: awssdk.String(contact.Phone),
		Message:     awssdk.String(msg),
	})
	if err != nil {
		h.logger.Warn("digest SMS failed", map[string]interface{}{
			"error":     err,
			"managerId": managerID,
		})
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
