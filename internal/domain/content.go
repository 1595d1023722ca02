package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies the ingestion path a content item arrived through.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelUpload   Channel = "upload"
)

// ContentType classifies the payload carried by a content item.
type ContentType string

const (
	TypeURL     ContentType = "url"
	TypePDF     ContentType = "pdf"
	TypeText    ContentType = "text"
	TypeAudio   ContentType = "audio"
	TypeSocial  ContentType = "social"
	TypeQuery   ContentType = "query"
	TypeUnknown ContentType = "unknown"
)

// ItemStatus enumerates processing milestones for a content item.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusDone       ItemStatus = "done"
	StatusFailed     ItemStatus = "failed"
)

// Terminal reports whether a status admits no further dispatch.
func (s ItemStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// ContentItem is the core entity flowing from gateway to router to agents.
// The payload is never mutated after ingestion; failed items keep it intact
// for manual resubmission.
type ContentItem struct {
	ID            string
	Channel       Channel
	Type          ContentType
	Payload       string
	Title         string
	Sender        string
	Command       string
	Tags          []string
	Status        ItemStatus
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewContentItem builds a pending item with a fresh id.
func NewContentItem(channel Channel, payload string) *ContentItem {
	now := time.Now().UTC()
	return &ContentItem{
		ID:        uuid.NewString(),
		Channel:   channel,
		Type:      TypeUnknown,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Entity is a named entity extracted from processed content.
type Entity struct {
	Type string
	Name string
}

// AgentResult is the append-only record of one successful agent invocation.
type AgentResult struct {
	ID          string
	ItemID      string
	Agent       string
	Summary     string
	Processed   string
	ContentType ContentType
	Entities    []Entity
	Tags        []string
	Providers   []string
	CompletedAt time.Time
}

// RoutingRule names which precedence branch selected the target agent.
type RoutingRule string

const (
	RuleCommand     RoutingRule = "command"
	RuleContentType RoutingRule = "content-type"
	RuleFallback    RoutingRule = "fallback"
)

// RoutingDecision is the audit record appended for every routing attempt,
// including the ones that end in the unknown agent.
type RoutingDecision struct {
	ItemID    string
	Agent     string
	Rule      RoutingRule
	Reason    string
	DecidedAt time.Time
}
