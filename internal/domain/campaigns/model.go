package campaigns

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"campaign-orchestrator/internal/domain/media"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Type string

const (
	TypeStandard Type = "STANDARD"
	TypeModel    Type = "MODEL"
	TypeProduct  Type = "PRODUCT"
	TypeMerged   Type = "MERGED"
)

// ParseType accepts any casing. Empty input means STANDARD.
func ParseType(s string) (Type, bool) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case "":
		return TypeStandard, true
	case TypeStandard, TypeModel, TypeProduct, TypeMerged:
		return t, true
	}
	return "", false
}

// DeriveType maps the flags reported by the inference service to a type.
func DeriveType(isModel, isProduct bool) Type {
	switch {
	case isModel && isProduct:
		return TypeMerged
	case isModel:
		return TypeModel
	case isProduct:
		return TypeProduct
	default:
		return TypeStandard
	}
}

// RequiredCategories lists the image categories a campaign of type t needs
// at least one of before it can be built.
func RequiredCategories(t Type) []media.Category {
	switch t {
	case TypeModel:
		return []media.Category{media.CategoryPerson}
	case TypeProduct:
		return []media.Category{media.CategoryProduct}
	default:
		return []media.Category{media.CategoryProduct, media.CategoryPerson}
	}
}

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusActive   Status = "ACTIVE"
)

type MergeStatus string

const (
	MergeCompleted MergeStatus = "COMPLETED"
	MergeFailed    MergeStatus = "FAILED"
)

// Tags is a string set persisted as a JSON array.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *Tags) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("tags: unsupported source %T", src)
	}
	return json.Unmarshal(raw, (*[]string)(t))
}

// normalizeTags trims, drops empties and de-duplicates while keeping order.
func normalizeTags(in []string) Tags {
	seen := make(map[string]struct{}, len(in))
	out := make(Tags, 0, len(in))
	for _, tag := range in {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Campaign is the orchestrator's aggregate. The Campaign row is the unit of
// mutual exclusion: every state change is a conditional update against it.
type Campaign struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserID uint   `gorm:"not null;index" json:"user_id"`

	Name         string `gorm:"not null" json:"name"`
	Description  string `gorm:"type:text;not null" json:"description"`
	ModelLabel   string `gorm:"not null" json:"model_label"`
	Capabilities Tags   `gorm:"type:text" json:"capabilities"`
	CoverKey     string `json:"-"`
	CoverURL     string `json:"cover_url"`

	CampaignType Type   `gorm:"type:varchar(16);not null;default:'STANDARD'" json:"campaign_type"`
	Status       Status `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`

	AdminID    *uint      `json:"admin_id,omitempty"`
	AdminNotes *string    `gorm:"type:text" json:"admin_notes,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`

	IsBuilt      bool       `gorm:"not null;default:false" json:"is_built"`
	IsBeingBuilt bool       `gorm:"not null;default:false" json:"is_being_built"`
	BuildDate    *time.Time `json:"build_date,omitempty"`

	MergeStatus *MergeStatus `gorm:"type:varchar(16)" json:"merge_status,omitempty"`
	MergeDate   *time.Time   `json:"merge_date,omitempty"`

	Images []media.CampaignImage `gorm:"foreignKey:CampaignID" json:"images,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (c *Campaign) IsModelCampaign() bool {
	return c.CampaignType == TypeModel || c.CampaignType == TypeMerged
}

func (c *Campaign) IsProductCampaign() bool {
	return c.CampaignType == TypeProduct || c.CampaignType == TypeMerged
}

type BuildRequestStatus string

const (
	BuildPending   BuildRequestStatus = "pending"
	BuildCompleted BuildRequestStatus = "completed"
	BuildFailed    BuildRequestStatus = "failed"
	BuildExpired   BuildRequestStatus = "expired"
	BuildCancelled BuildRequestStatus = "cancelled"
)

// BuildRequest records one accepted dispatch. A pending request past
// ExpiresAt is reclaimed by SweepStaleBuilds.
type BuildRequest struct {
	ID           string             `gorm:"primaryKey;size:36" json:"id"`
	CampaignID   string             `gorm:"size:36;not null;index" json:"campaign_id"`
	Status       BuildRequestStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	DispatchedAt time.Time          `json:"dispatched_at"`
	ExpiresAt    time.Time          `gorm:"index" json:"expires_at"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	Error        string             `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (r *BuildRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
