// Package campaigns implements the campaign lifecycle: creation and edits,
// admin review, build dispatch and completion, and merges.
package campaigns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"campaign-orchestrator/internal/apperrors"
	"campaign-orchestrator/internal/domain/users"
	"campaign-orchestrator/internal/infra/events"
	"campaign-orchestrator/internal/infra/inference"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultBuildTimeout bounds how long a dispatched build may stay in flight
// before the sweep reclaims it.
const DefaultBuildTimeout = 2 * time.Hour

// maxCASAttempts bounds retries of an edit that lost a compare-and-set race.
const maxCASAttempts = 3

// BlobStore persists image bytes.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Open(key string) (io.ReadCloser, error)
	Exists(key string) (bool, error)
	Delete(key string) error
	URL(key string) string
}

// Gateway is the outbound side of the inference service.
type Gateway interface {
	SendBuildBatch(ctx context.Context, batch inference.BuildBatch) inference.Result
	NotifyBuildCampaign(ctx context.Context, campaignID string) inference.Result
	RequestMerge(ctx context.Context, modelCampaignID, productCampaignID string) inference.Result
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uint
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == users.RoleAdmin
}

// Upload is a file received from the caller.
type Upload struct {
	Filename string
	Body     io.Reader
}

type Deps struct {
	DB           *gorm.DB
	Users        users.Directory
	Blobs        BlobStore
	Gateway      Gateway
	Events       events.Publisher
	Logger       *zap.Logger
	BuildTimeout time.Duration
	Now          func() time.Time
}

type Service struct {
	db           *gorm.DB
	users        users.Directory
	blobs        BlobStore
	gateway      Gateway
	events       events.Publisher
	log          *zap.Logger
	buildTimeout time.Duration
	now          func() time.Time
}

func NewService(d Deps) *Service {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.BuildTimeout <= 0 {
		d.BuildTimeout = DefaultBuildTimeout
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:           d.DB,
		users:        d.Users,
		blobs:        d.Blobs,
		gateway:      d.Gateway,
		events:       d.Events,
		log:          d.Logger.Named("campaigns"),
		buildTimeout: d.BuildTimeout,
		now:          d.Now,
	}
}

var errStaleWrite = errors.New("campaign changed concurrently")

func notFound(id string) error {
	return apperrors.NotFound(apperrors.CodeCampaignNotFound, "Campaign not found").WithMetadata("campaign_id", id)
}

func loadCampaign(db *gorm.DB, id string) (*Campaign, error) {
	var c Campaign
	err := db.First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign %s: %w", id, err)
	}
	return &c, nil
}

func loadOwned(db *gorm.DB, id string, actor Actor) (*Campaign, error) {
	c, err := loadCampaign(db, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != actor.UserID {
		return nil, apperrors.ForbiddenOwner("You do not own this campaign")
	}
	return c, nil
}

// publish is best effort: a committed transition is never undone because
// the event bus is down.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now()
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.log.Warn("publish event failed",
			zap.String("type", e.Type),
			zap.String("campaign_id", e.CampaignID),
			zap.Error(err),
		)
	}
}

// deleteBlobs removes blobs after a commit. Failures leave orphans, which
// are logged rather than surfaced.
func (s *Service) deleteBlobs(keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.blobs.Delete(key); err != nil {
			s.log.Warn("delete blob failed", zap.String("key", key), zap.Error(err))
		}
	}
}

var safeExt = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

func blobKey(campaignID, kind, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if !safeExt.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("campaigns/%s/%s/%s%s", campaignID, kind, uuid.NewString(), ext)
}

func (s *Service) putBlob(ctx context.Context, key string, up *Upload) error {
	if err := s.blobs.Put(ctx, key, up.Body); err != nil {
		return apperrors.Internal("Could not store image", err)
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}
