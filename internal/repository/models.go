package repository

import (
	"time"

	"github.com/Sujay0610/ReviewReap/internal/domain"
)

// CampaignModel is the persistence model for the campaigns table.
type CampaignModel struct {
	ID              string                `gorm:"type:uuid;primaryKey"`
	OrgID           string                `gorm:"type:uuid;not null"`
	Name            string                `gorm:"type:varchar(255);not null"`
	Channel         domain.Channel        `gorm:"type:varchar(10);not null"`
	MessageTemplate string                `gorm:"type:text;not null"`
	AIEnabled       bool                  `gorm:"column:ai_enabled;not null;default:false"`
	DelayHours      int                   `gorm:"not null;default:0"`
	Status          domain.CampaignStatus `gorm:"type:varchar(20);not null"`
	ScheduledAt     *time.Time            `gorm:"type:timestamptz"`
	StartedAt       *time.Time            `gorm:"type:timestamptz"`
	CompletedAt     *time.Time            `gorm:"type:timestamptz"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (CampaignModel) TableName() string {
	return "campaigns"
}

// GuestModel is the persistence model for the guests table.
type GuestModel struct {
	ID           string     `gorm:"type:uuid;primaryKey"`
	OrgID        string     `gorm:"type:uuid;not null"`
	CampaignID   *string    `gorm:"type:uuid"`
	Name         string     `gorm:"type:varchar(255);not null"`
	Phone        *string    `gorm:"type:varchar(32)"`
	Email        *string    `gorm:"type:varchar(255)"`
	CheckoutDate *time.Time `gorm:"type:timestamptz"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (GuestModel) TableName() string {
	return "guests"
}

// MessageModel is the persistence model for the messages table. OrgID is
// denormalized from the campaign so every write can be scoped without a join.
type MessageModel struct {
	ID            string               `gorm:"type:uuid;primaryKey"`
	OrgID         string               `gorm:"type:uuid;not null"`
	CampaignID    string               `gorm:"type:uuid;not null"`
	GuestID       string               `gorm:"type:uuid;not null"`
	Channel       domain.Channel       `gorm:"type:varchar(10);not null"`
	Content       string               `gorm:"type:text;not null"`
	Status        domain.MessageStatus `gorm:"type:varchar(20);not null"`
	ProviderMsgID *string              `gorm:"type:varchar(255)"`
	ScheduledAt   *time.Time           `gorm:"type:timestamptz"`
	RetryCount    int                  `gorm:"not null;default:0"`
	SentAt        *time.Time           `gorm:"type:timestamptz"`
	DeliveredAt   *time.Time           `gorm:"type:timestamptz"`
	ReadAt        *time.Time           `gorm:"type:timestamptz"`
	FailedAt      *time.Time           `gorm:"type:timestamptz"`
	ErrorMessage  *string              `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (MessageModel) TableName() string {
	return "messages"
}

// MessageEventModel is the persistence model for message_events. Rows are
// append-only.
type MessageEventModel struct {
	ID        string           `gorm:"type:uuid;primaryKey"`
	MessageID string           `gorm:"type:uuid;not null"`
	Type      domain.EventType `gorm:"type:varchar(20);not null"`
	Payload   string           `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
}

func (MessageEventModel) TableName() string {
	return "message_events"
}

func campaignModelFromDomain(c *domain.Campaign) *CampaignModel {
	if c == nil {
		return nil
	}

	return &CampaignModel{
		ID:              c.ID,
		OrgID:           c.OrgID,
		Name:            c.Name,
		Channel:         c.Channel,
		MessageTemplate: c.MessageTemplate,
		AIEnabled:       c.AIEnabled,
		DelayHours:      c.DelayHours,
		Status:          c.Status,
		ScheduledAt:     c.ScheduledAt,
		StartedAt:       c.StartedAt,
		CompletedAt:     c.CompletedAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func campaignModelToDomain(m *CampaignModel) *domain.Campaign {
	if m == nil {
		return nil
	}

	return &domain.Campaign{
		ID:              m.ID,
		OrgID:           m.OrgID,
		Name:            m.Name,
		Channel:         m.Channel,
		MessageTemplate: m.MessageTemplate,
		AIEnabled:       m.AIEnabled,
		DelayHours:      m.DelayHours,
		Status:          m.Status,
		ScheduledAt:     m.ScheduledAt,
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func guestModelFromDomain(g *domain.Guest) *GuestModel {
	if g == nil {
		return nil
	}

	return &GuestModel{
		ID:           g.ID,
		OrgID:        g.OrgID,
		CampaignID:   g.CampaignID,
		Name:         g.Name,
		Phone:        g.Phone,
		Email:        g.Email,
		CheckoutDate: g.CheckoutDate,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

func guestModelToDomain(m *GuestModel) *domain.Guest {
	if m == nil {
		return nil
	}

	return &domain.Guest{
		ID:           m.ID,
		OrgID:        m.OrgID,
		CampaignID:   m.CampaignID,
		Name:         m.Name,
		Phone:        m.Phone,
		Email:        m.Email,
		CheckoutDate: m.CheckoutDate,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func messageModelFromDomain(msg *domain.Message) *MessageModel {
	if msg == nil {
		return nil
	}

	return &MessageModel{
		ID:            msg.ID,
		OrgID:         msg.OrgID,
		CampaignID:    msg.CampaignID,
		GuestID:       msg.GuestID,
		Channel:       msg.Channel,
		Content:       msg.Content,
		Status:        msg.Status,
		ProviderMsgID: msg.ProviderMsgID,
		ScheduledAt:   msg.ScheduledAt,
		RetryCount:    msg.RetryCount,
		SentAt:        msg.SentAt,
		DeliveredAt:   msg.DeliveredAt,
		ReadAt:        msg.ReadAt,
		FailedAt:      msg.FailedAt,
		ErrorMessage:  msg.ErrorMessage,
		CreatedAt:     msg.CreatedAt,
		UpdatedAt:     msg.UpdatedAt,
	}
}

func messageModelToDomain(m *MessageModel) *domain.Message {
	if m == nil {
		return nil
	}

	return &domain.Message{
		ID:            m.ID,
		OrgID:         m.OrgID,
		CampaignID:    m.CampaignID,
		GuestID:       m.GuestID,
		Channel:       m.Channel,
		Content:       m.Content,
		Status:        m.Status,
		ProviderMsgID: m.ProviderMsgID,
		ScheduledAt:   m.ScheduledAt,
		RetryCount:    m.RetryCount,
		SentAt:        m.SentAt,
		DeliveredAt:   m.DeliveredAt,
		ReadAt:        m.ReadAt,
		FailedAt:      m.FailedAt,
		ErrorMessage:  m.ErrorMessage,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func eventModelFromDomain(e *domain.MessageEvent) *MessageEventModel {
	if e == nil {
		return nil
	}

	payload := e.Payload
	// Payload lands in a jsonb column; an empty string is not valid JSON.
	if payload == "" {
		payload = "{}"
	}

	return &MessageEventModel{
		ID:        e.ID,
		MessageID: e.MessageID,
		Type:      e.Type,
		Payload:   payload,
		CreatedAt: e.CreatedAt,
	}
}

func eventModelToDomain(m *MessageEventModel) *domain.MessageEvent {
	if m == nil {
		return nil
	}

	return &domain.MessageEvent{
		ID:        m.ID,
		MessageID: m.MessageID,
		Type:      m.Type,
		Payload:   m.Payload,
		CreatedAt: m.CreatedAt,
	}
}
