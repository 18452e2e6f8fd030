package domain

import (
	"strings"
	"time"
)

// Guest is an outreach recipient owned by an organization. Guest CRUD lives
// outside this engine; the dispatcher only reads guests to resolve message
// destinations and send schedules.
type Guest struct {
	ID           string
	OrgID        string
	CampaignID   *string
	Name         string
	Phone        *string
	Email        *string
	CheckoutDate *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (g *Guest) HasPhone() bool {
	return g.Phone != nil && strings.TrimSpace(*g.Phone) != ""
}

func (g *Guest) HasEmail() bool {
	return g.Email != nil && strings.TrimSpace(*g.Email) != ""
}
