package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignImage is one categorized image owned by a campaign.
type CampaignImage struct {
	ID          string   `gorm:"primaryKey;size:36" json:"id"`
	CampaignID  string   `gorm:"size:36;not null;index" json:"campaign_id"`
	StorageKey  string   `gorm:"not null" json:"-"`
	URL         string   `gorm:"not null" json:"url"`
	Title       string   `gorm:"not null" json:"title"`
	Description string   `json:"description"`
	Category    Category `gorm:"type:varchar(16);not null;index" json:"category"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i *CampaignImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
