package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/journeyhq/journey"
	"github.com/journeyhq/journey/command"
	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
	"github.com/journeyhq/journey/incident"
	"github.com/journeyhq/journey/instance"
	"github.com/journeyhq/journey/outbox"
	"github.com/journeyhq/journey/step"
)

// ── Instance model ────────────────────────────────────────────────

type instanceModel struct {
	bun.BaseModel `bun:"table:journey_instances"`

	ID             string            `bun:"id,pk"`
	OwnerUserID    string            `bun:"owner_user_id,notnull,default:''"`
	FlowVersion    string            `bun:"flow_version,notnull"`
	CurrentState   string            `bun:"current_state,notnull"`
	Status         string            `bun:"status,notnull,default:'ACTIVE'"`
	StateEnteredAt time.Time         `bun:"state_entered_at,notnull"`
	Revision       int64             `bun:"revision,notnull,default:0"`
	Context        map[string]string `bun:"context,type:jsonb"`
	CreatedAt      time.Time         `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time         `bun:"updated_at,notnull,default:current_timestamp"`
}

func toInstanceModel(inst *instance.Instance) *instanceModel {
	return &instanceModel{
		ID:             inst.ID.String(),
		OwnerUserID:    inst.OwnerUserID,
		FlowVersion:    inst.FlowVersion,
		CurrentState:   string(inst.CurrentState),
		Status:         string(inst.Status),
		StateEnteredAt: inst.StateEnteredAt,
		Revision:       inst.Revision,
		Context:        inst.Context,
		CreatedAt:      inst.CreatedAt,
		UpdatedAt:      inst.UpdatedAt,
	}
}

func fromInstanceModel(m *instanceModel) (*instance.Instance, error) {
	parsedID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("journey/bun: parse instance id %q: %w", m.ID, err)
	}

	return &instance.Instance{
		Entity: journey.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             parsedID,
		OwnerUserID:    m.OwnerUserID,
		FlowVersion:    m.FlowVersion,
		CurrentState:   flow.State(m.CurrentState),
		Status:         instance.Status(m.Status),
		StateEnteredAt: m.StateEnteredAt,
		Revision:       m.Revision,
		Context:        m.Context,
	}, nil
}

// ── Step record model ─────────────────────────────────────────────

type stepRecordModel struct {
	bun.BaseModel `bun:"table:journey_step_records"`

	InstanceID       string     `bun:"instance_id,pk"`
	State            string     `bun:"state,pk"`
	Status           string     `bun:"status,notnull,default:'NEW'"`
	RetryCount       int        `bun:"retry_count,notnull,default:0"`
	MaxRetry         int        `bun:"max_retry,notnull,default:0"`
	NextRetryAt      *time.Time `bun:"next_retry_at"`
	LastErrorCode    string     `bun:"last_error_code,notnull,default:''"`
	LastErrorMessage string     `bun:"last_error_message,notnull,default:''"`
	CreatedAt        time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toStepRecordModel(rec *step.Record) *stepRecordModel {
	return &stepRecordModel{
		InstanceID:       rec.InstanceID.String(),
		State:            string(rec.State),
		Status:           string(rec.Status),
		RetryCount:       rec.RetryCount,
		MaxRetry:         rec.MaxRetry,
		NextRetryAt:      rec.NextRetryAt,
		LastErrorCode:    rec.LastErrorCode,
		LastErrorMessage: rec.LastErrorMessage,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func fromStepRecordModel(m *stepRecordModel) (*step.Record, error) {
	parsedID, err := id.Parse(m.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("journey/bun: parse instance id %q: %w", m.InstanceID, err)
	}

	return &step.Record{
		Entity: journey.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		InstanceID:       parsedID,
		State:            flow.State(m.State),
		Status:           step.Status(m.Status),
		RetryCount:       m.RetryCount,
		MaxRetry:         m.MaxRetry,
		NextRetryAt:      m.NextRetryAt,
		LastErrorCode:    m.LastErrorCode,
		LastErrorMessage: m.LastErrorMessage,
	}, nil
}

// ── Processed command model ───────────────────────────────────────

type processedCommandModel struct {
	bun.BaseModel `bun:"table:journey_processed_commands"`

	RequestID   string    `bun:"request_id,pk"`
	InstanceID  string    `bun:"instance_id,notnull"`
	Action      string    `bun:"action,notnull"`
	Actor       string    `bun:"actor,notnull"`
	Outcome     string    `bun:"outcome,notnull,default:''"`
	Comment     string    `bun:"comment,notnull,default:''"`
	ProcessedAt time.Time `bun:"processed_at,notnull,default:current_timestamp"`
}

func toProcessedModel(rec *command.ProcessedRecord) *processedCommandModel {
	return &processedCommandModel{
		RequestID:   rec.RequestID,
		InstanceID:  rec.InstanceID.String(),
		Action:      string(rec.Action),
		Actor:       string(rec.Actor),
		Outcome:     rec.Outcome,
		Comment:     rec.Comment,
		ProcessedAt: rec.ProcessedAt,
	}
}

// ── Incident model ────────────────────────────────────────────────

type incidentModel struct {
	bun.BaseModel `bun:"table:journey_incidents"`

	ID         string    `bun:"id,pk"`
	InstanceID string    `bun:"instance_id,notnull"`
	State      string    `bun:"state,notnull"`
	Action     string    `bun:"action,notnull,default:''"`
	Code       string    `bun:"code,notnull"`
	Message    string    `bun:"message,notnull,default:''"`
	Severity   string    `bun:"severity,notnull,default:'LOW'"`
	Status     string    `bun:"status,notnull,default:'OPEN'"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toIncidentModel(inc *incident.Incident) *incidentModel {
	return &incidentModel{
		ID:         inc.ID.String(),
		InstanceID: inc.InstanceID.String(),
		State:      string(inc.State),
		Action:     string(inc.Action),
		Code:       inc.Code,
		Message:    inc.Message,
		Severity:   string(inc.Severity),
		Status:     string(inc.Status),
		CreatedAt:  inc.CreatedAt,
		UpdatedAt:  inc.UpdatedAt,
	}
}

func fromIncidentModel(m *incidentModel) (*incident.Incident, error) {
	parsedID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("journey/bun: parse incident id %q: %w", m.ID, err)
	}

	parsedInstID, err := id.Parse(m.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("journey/bun: parse instance id %q: %w", m.InstanceID, err)
	}

	return &incident.Incident{
		Entity: journey.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         parsedID,
		InstanceID: parsedInstID,
		State:      flow.State(m.State),
		Action:     flow.Action(m.Action),
		Code:       m.Code,
		Message:    m.Message,
		Severity:   incident.Severity(m.Severity),
		Status:     incident.Status(m.Status),
	}, nil
}

// ── Outbox model ──────────────────────────────────────────────────

type outboxModel struct {
	bun.BaseModel `bun:"table:journey_outbox"`

	ID            string     `bun:"id,pk"`
	Topic         string     `bun:"topic,notnull"`
	PartitionKey  string     `bun:"partition_key,notnull,default:''"`
	Kind          string     `bun:"kind,notnull"`
	Payload       []byte     `bun:"payload,notnull,type:bytea"`
	Status        string     `bun:"status,notnull,default:'PENDING'"`
	Attempts      int        `bun:"attempts,notnull,default:0"`
	NextAttemptAt time.Time  `bun:"next_attempt_at,notnull,default:current_timestamp"`
	PublishedAt   *time.Time `bun:"published_at"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toOutboxModel(rec *outbox.Record) *outboxModel {
	return &outboxModel{
		ID:            rec.ID.String(),
		Topic:         rec.Topic,
		PartitionKey:  rec.PartitionKey,
		Kind:          rec.Kind,
		Payload:       rec.Payload,
		Status:        string(rec.Status),
		Attempts:      rec.Attempts,
		NextAttemptAt: rec.NextAttemptAt,
		PublishedAt:   rec.PublishedAt,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func fromOutboxModel(m *outboxModel) (*outbox.Record, error) {
	parsedID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("journey/bun: parse outbox id %q: %w", m.ID, err)
	}

	return &outbox.Record{
		Entity: journey.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            parsedID,
		Topic:         m.Topic,
		PartitionKey:  m.PartitionKey,
		Kind:          m.Kind,
		Payload:       m.Payload,
		Status:        outbox.Status(m.Status),
		Attempts:      m.Attempts,
		NextAttemptAt: m.NextAttemptAt,
		PublishedAt:   m.PublishedAt,
	}, nil
}
