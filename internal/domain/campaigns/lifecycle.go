package campaigns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"campaign-orchestrator/internal/apperrors"
	"campaign-orchestrator/internal/domain/media"
	"campaign-orchestrator/internal/domain/users"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CreateInput struct {
	Name         string
	Description  string
	ModelLabel   string
	Capabilities []string
	CampaignType string
	Cover        *Upload
}

// UpdateInput carries the fields to change; nil means unchanged.
type UpdateInput struct {
	Name         *string
	Description  *string
	ModelLabel   *string
	Capabilities *[]string
	CampaignType *string
	Cover        *Upload
}

func (in UpdateInput) empty() bool {
	return in.Name == nil && in.Description == nil && in.ModelLabel == nil &&
		in.Capabilities == nil && in.CampaignType == nil && in.Cover == nil
}

func parseUserType(s string) (Type, error) {
	t, ok := ParseType(s)
	if !ok || t == TypeMerged {
		// MERGED is only ever assigned by a build callback
		return "", apperrors.Validation(apperrors.CodeCampaignInvalidType,
			"Campaign type must be one of STANDARD, MODEL or PRODUCT")
	}
	return t, nil
}

func (s *Service) requireVerifiedOwner(ctx context.Context, id uint) error {
	owner, err := s.users.Lookup(ctx, id)
	if errors.Is(err, users.ErrUnknownUser) {
		return apperrors.Forbidden(apperrors.CodeUnauthorized, "Unknown account")
	}
	if err != nil {
		return apperrors.Internal("Could not load account", err)
	}
	if !owner.IsVerified {
		return apperrors.Validation(apperrors.CodeOwnerUnverified, "Please verify your account before creating campaigns")
	}
	return nil
}

// Create stores a new campaign awaiting review.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*Campaign, error) {
	name := strings.TrimSpace(in.Name)
	description := strings.TrimSpace(in.Description)
	if name == "" || description == "" {
		return nil, apperrors.Validation(apperrors.CodeCampaignFieldsMissing, "Name and description are required")
	}
	if in.Cover == nil || in.Cover.Body == nil {
		return nil, apperrors.Validation(apperrors.CodeCampaignImageMissing, "A campaign image is required")
	}
	label := strings.TrimSpace(in.ModelLabel)
	tags := normalizeTags(in.Capabilities)
	if label == "" || len(tags) == 0 {
		return nil, apperrors.Validation(apperrors.CodeCampaignNoCapabilities, "Select a model and at least one capability")
	}
	typ, err := parseUserType(in.CampaignType)
	if err != nil {
		return nil, err
	}
	if err := s.requireVerifiedOwner(ctx, actor.UserID); err != nil {
		return nil, err
	}

	c := &Campaign{
		ID:           uuid.NewString(),
		UserID:       actor.UserID,
		Name:         name,
		Description:  description,
		ModelLabel:   label,
		Capabilities: tags,
		CampaignType: typ,
		Status:       StatusPending,
	}
	c.CoverKey = blobKey(c.ID, "cover", in.Cover.Filename)
	c.CoverURL = s.blobs.URL(c.CoverKey)

	if err := s.putBlob(ctx, c.CoverKey, in.Cover); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		s.deleteBlobs(c.CoverKey)
		return nil, apperrors.Internal("Could not create campaign", err)
	}

	s.log.Info("campaign created", zap.String("campaign_id", c.ID), zap.Uint("user_id", actor.UserID))
	return c, nil
}

// mutation computes column updates for an unbuilt campaign. It may write
// other rows through tx; those writes roll back if the campaign changed.
type mutation func(tx *gorm.DB, c *Campaign) (map[string]interface{}, error)

// mutateUnbuilt applies fn to a campaign its owner may still edit. The
// final write is conditional on the state fn observed, so an edit can never
// interleave with a review decision or a build claim. Editing a decided
// campaign sends it back to review.
func (s *Service) mutateUnbuilt(ctx context.Context, id string, actor Actor, lockedCode apperrors.Code, fn mutation) (*Campaign, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		var out *Campaign
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c, err := loadOwned(tx, id, actor)
			if err != nil {
				return err
			}
			if c.IsBuilt {
				return apperrors.Forbidden(lockedCode, "Built campaigns can no longer be edited")
			}
			if c.IsBeingBuilt {
				return apperrors.Conflict(apperrors.CodeBuildInFlight, "A build is in progress for this campaign")
			}

			updates, err := fn(tx, c)
			if err != nil {
				return err
			}
			if c.Status == StatusApproved || c.Status == StatusRejected {
				updates["status"] = StatusPending
				updates["admin_notes"] = nil
			}
			updates["updated_at"] = s.now()

			res := tx.Model(&Campaign{}).
				Where("id = ? AND status = ? AND is_built = ? AND is_being_built = ?", c.ID, c.Status, false, false).
				Updates(updates)
			if res.Error != nil {
				return fmt.Errorf("update campaign %s: %w", c.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return errStaleWrite
			}

			out, err = loadCampaign(tx, c.ID)
			return err
		})
		if errors.Is(err, errStaleWrite) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, apperrors.Conflict(apperrors.CodeCampaignConcurrentWrite, "Campaign was modified concurrently, please retry")
}

// Update edits descriptive fields and optionally replaces the cover. The
// previous cover blob is deleted only after the new one is committed.
func (s *Service) Update(ctx context.Context, id string, actor Actor, in UpdateInput) (*Campaign, error) {
	if in.empty() {
		return nil, apperrors.Validation(apperrors.CodeCampaignFieldsMissing, "Nothing to update")
	}

	updates := map[string]interface{}{}
	text := func(field *string, column string, code apperrors.Code, msg string) error {
		if field == nil {
			return nil
		}
		v := strings.TrimSpace(*field)
		if v == "" {
			return apperrors.Validation(code, msg)
		}
		updates[column] = v
		return nil
	}
	if err := text(in.Name, "name", apperrors.CodeCampaignFieldsMissing, "Name cannot be empty"); err != nil {
		return nil, err
	}
	if err := text(in.Description, "description", apperrors.CodeCampaignFieldsMissing, "Description cannot be empty"); err != nil {
		return nil, err
	}
	if err := text(in.ModelLabel, "model_label", apperrors.CodeCampaignNoCapabilities, "A model must be selected"); err != nil {
		return nil, err
	}
	if in.Capabilities != nil {
		tags := normalizeTags(*in.Capabilities)
		if len(tags) == 0 {
			return nil, apperrors.Validation(apperrors.CodeCampaignNoCapabilities, "Select at least one capability")
		}
		updates["capabilities"] = tags
	}
	if in.CampaignType != nil {
		typ, err := parseUserType(*in.CampaignType)
		if err != nil {
			return nil, err
		}
		updates["campaign_type"] = typ
	}

	var newCover string
	if in.Cover != nil {
		if in.Cover.Body == nil {
			return nil, apperrors.Validation(apperrors.CodeCampaignImageMissing, "Cover image is empty")
		}
		newCover = blobKey(id, "cover", in.Cover.Filename)
		if err := s.putBlob(ctx, newCover, in.Cover); err != nil {
			return nil, err
		}
	}

	var oldCover string
	c, err := s.mutateUnbuilt(ctx, id, actor, apperrors.CodeCampaignBuilt, func(_ *gorm.DB, c *Campaign) (map[string]interface{}, error) {
		out := make(map[string]interface{}, len(updates)+4)
		for k, v := range updates {
			out[k] = v
		}
		oldCover = ""
		if newCover != "" {
			oldCover = c.CoverKey
			out["cover_key"] = newCover
			out["cover_url"] = s.blobs.URL(newCover)
		}
		return out, nil
	})
	if err != nil {
		s.deleteBlobs(newCover)
		return nil, err
	}
	s.deleteBlobs(oldCover)
	return c, nil
}

// Delete removes an unbuilt campaign with its images. Blobs go after the
// rows are gone.
func (s *Service) Delete(ctx context.Context, id string, actor Actor) error {
	var blobKeys []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := loadOwned(tx, id, actor)
		if err != nil {
			return err
		}
		if c.IsBuilt {
			return apperrors.Forbidden(apperrors.CodeCampaignBuilt, "Built campaigns cannot be deleted")
		}
		if c.IsBeingBuilt {
			return apperrors.Conflict(apperrors.CodeBuildInFlight, "A build is in progress for this campaign")
		}

		keys, err := media.DeleteByCampaign(tx, c.ID)
		if err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ?", c.ID).Delete(&BuildRequest{}).Error; err != nil {
			return fmt.Errorf("delete build requests: %w", err)
		}

		res := tx.Where("id = ? AND is_built = ? AND is_being_built = ?", c.ID, false, false).Delete(&Campaign{})
		if res.Error != nil {
			return fmt.Errorf("delete campaign: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict(apperrors.CodeCampaignConcurrentWrite, "Campaign was modified concurrently, please retry")
		}

		blobKeys = append(keys, c.CoverKey)
		return nil
	})
	if err != nil {
		return err
	}

	s.deleteBlobs(blobKeys...)
	s.log.Info("campaign deleted", zap.String("campaign_id", id), zap.Uint("user_id", actor.UserID))
	return nil
}

// Get returns one of the caller's campaigns with its images.
func (s *Service) Get(ctx context.Context, id string, actor Actor) (*Campaign, error) {
	c, err := loadOwned(s.db.WithContext(ctx).Preload("Images", orderImages), id, actor)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns the caller's campaigns, newest first.
func (s *Service) List(ctx context.Context, actor Actor) ([]Campaign, error) {
	var out []Campaign
	err := s.db.WithContext(ctx).
		Where("user_id = ?", actor.UserID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return out, nil
}

func orderImages(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC")
}
