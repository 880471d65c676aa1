package campaigns

import (
	"context"
	"fmt"

	"campaign-orchestrator/internal/apperrors"
	"campaign-orchestrator/internal/infra/events"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SweepStaleBuilds expires pending build requests past their deadline and
// clears the in-flight flag of campaigns that never got a callback. It
// returns how many requests were expired.
func (s *Service) SweepStaleBuilds(ctx context.Context) (int, error) {
	now := s.now()
	var stale []BuildRequest
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", BuildPending, now).
		Order("expires_at ASC").
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("find stale builds: %w", err)
	}

	expired := 0
	for _, req := range stale {
		var released bool
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&BuildRequest{}).
				Where("id = ? AND status = ?", req.ID, BuildPending).
				Updates(map[string]interface{}{"status": BuildExpired, "completed_at": now, "error": "no callback before deadline"})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// completed or released meanwhile
				return nil
			}
			res = tx.Model(&Campaign{}).
				Where("id = ? AND is_built = ? AND is_being_built = ?", req.CampaignID, false, true).
				Updates(map[string]interface{}{"is_being_built": false, "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			released = res.RowsAffected == 1
			expired++
			return nil
		})
		if err != nil {
			return expired, fmt.Errorf("expire build %s: %w", req.ID, err)
		}
		if released {
			s.log.Warn("stale build reclaimed",
				zap.String("campaign_id", req.CampaignID),
				zap.String("build_request_id", req.ID),
				zap.Time("expired_at", req.ExpiresAt),
			)
			s.publish(ctx, events.Event{Type: events.BuildExpired, CampaignID: req.CampaignID, RelatedID: req.ID})
		}
	}
	return expired, nil
}

// ResetBuild lets an admin clear a stuck in-flight flag without waiting for
// the sweep.
func (s *Service) ResetBuild(ctx context.Context, id string, actor Actor) (*Campaign, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	now := s.now()

	var out *Campaign
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Campaign{}).
			Where("id = ? AND is_built = ? AND is_being_built = ?", id, false, true).
			Updates(map[string]interface{}{"is_being_built": false, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("reset build %s: %w", id, res.Error)
		}
		c, err := loadCampaign(tx, id)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict(apperrors.CodeBuildNotInFlight, "No build is in progress for this campaign")
		}
		err = tx.Model(&BuildRequest{}).
			Where("campaign_id = ? AND status = ?", id, BuildPending).
			Updates(map[string]interface{}{"status": BuildCancelled, "completed_at": now, "error": "reset by admin"}).Error
		if err != nil {
			return fmt.Errorf("cancel build requests: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Warn("build reset by admin", zap.String("campaign_id", id), zap.Uint("admin_id", actor.UserID))
	s.publish(ctx, events.Event{Type: events.BuildReset, CampaignID: id})
	return out, nil
}
