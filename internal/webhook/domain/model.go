package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the audit and dedup row for one webhook delivery. The
// unique webhook_id makes ingestion idempotent: a concurrent or repeated
// delivery inserts nothing and is answered from this row.
type EventRecord struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id,string"`
	WebhookID  string         `gorm:"uniqueIndex;not null" json:"webhookId"`
	Resource   string         `gorm:"not null" json:"resource"`
	EventType  string         `gorm:"not null" json:"eventType"`
	EntityID   string         `json:"entityId"`
	PartnerID  string         `json:"partnerId"`
	Payload    datatypes.JSON `json:"payload,omitempty"`
	ReceivedAt time.Time      `gorm:"not null" json:"receivedAt"`
	AppliedAt  *time.Time     `json:"appliedAt,omitempty"`
}

func (EventRecord) TableName() string { return "webhook_events" }

const (
	ResourceSettlement = "settlement"
	ResourcePayout     = "payout"
)
