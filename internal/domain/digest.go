package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestKind separates recurring schedules from one-shot window requests.
type RequestKind string

const (
	KindRecurring RequestKind = "recurring"
	KindOneShot   RequestKind = "oneshot"
)

// ScheduleType is the recurrence period of a recurring digest request.
type ScheduleType string

const (
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
)

// RequestState tracks a digest request through one fire.
type RequestState string

const (
	StateScheduled   RequestState = "scheduled"
	StateFiring      RequestState = "firing"
	StateAggregating RequestState = "aggregating"
	StateDelivering  RequestState = "delivering"
	StateCompleted   RequestState = "completed"
	StateFailed      RequestState = "failed"
)

// DeliveryMethod selects the outbound channel for a generated digest.
type DeliveryMethod string

const (
	DeliverEmail     DeliveryMethod = "email"
	DeliverMessaging DeliveryMethod = "messaging"
	DeliverView      DeliveryMethod = "view"
)

// DeliveryStatus tracks whether a digest record reached its recipient.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DigestRequest is either a recurring schedule or a one-shot window request.
// A recurring request always carries exactly one NextRun while active.
type DigestRequest struct {
	ID             string
	Kind           RequestKind
	Schedule       ScheduleType
	At             string // "HH:MM", recurring only
	WindowStart    time.Time
	WindowEnd      time.Time
	Types          []ContentType
	Tags           []string
	Recipient      string
	DeliveryMethod DeliveryMethod
	State          RequestState
	Active         bool
	LastRun        time.Time
	NextRun        time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewDigestRequest builds a scheduled, active request with a fresh id.
func NewDigestRequest(kind RequestKind) *DigestRequest {
	now := time.Now().UTC()
	return &DigestRequest{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     StateScheduled,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Theme labels a group of content items that aggregation clustered together.
type Theme struct {
	Label   string
	ItemIDs []string
}

// Connection links two content items sharing themes or entities.
type Connection struct {
	ItemA  string
	ItemB  string
	Shared []string
}

// DigestRecord is the output of one aggregation run. It is created before
// delivery is attempted and survives delivery failure for manual redelivery.
type DigestRecord struct {
	ID             string
	RequestID      string
	ItemIDs        []string
	Themes         []Theme
	Connections    []Connection
	Body           string
	HTMLBody       string
	Recipient      string
	DeliveryMethod DeliveryMethod
	DeliveryStatus DeliveryStatus
	GeneratedAt    time.Time
}

// NewDigestRecord builds a pending-delivery record for a request.
func NewDigestRecord(req *DigestRequest) *DigestRecord {
	return &DigestRecord{
		ID:             uuid.NewString(),
		RequestID:      req.ID,
		Recipient:      req.Recipient,
		DeliveryMethod: req.DeliveryMethod,
		DeliveryStatus: DeliveryPending,
		GeneratedAt:    time.Now().UTC(),
	}
}
