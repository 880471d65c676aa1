package campaigns

import (
	"context"
	"fmt"
	"strings"

	"campaign-orchestrator/internal/apperrors"
	"campaign-orchestrator/internal/infra/events"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func requireAdmin(actor Actor) error {
	if !actor.IsAdmin() {
		return apperrors.Forbidden(apperrors.CodeAdminOnly, "Only administrators can do this")
	}
	return nil
}

// Review records an admin decision on a campaign awaiting review. Each
// submission can be decided once; deciding again fails without touching the
// row.
func (s *Service) Review(ctx context.Context, id string, actor Actor, decision, notes string) (*Campaign, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	status := Status(strings.ToUpper(strings.TrimSpace(decision)))
	if status != StatusApproved && status != StatusRejected {
		return nil, apperrors.Validation(apperrors.CodeReviewInvalidDecision, "Decision must be APPROVED or REJECTED")
	}

	var adminNotes *string
	if n := strings.TrimSpace(notes); n != "" {
		adminNotes = strPtr(n)
	}
	adminID := actor.UserID
	now := s.now()

	var out *Campaign
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Campaign{}).
			Where("id = ? AND status = ?", id, StatusPending).
			Updates(map[string]interface{}{
				"status":      status,
				"admin_id":    adminID,
				"admin_notes": adminNotes,
				"reviewed_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("review campaign %s: %w", id, res.Error)
		}

		c, err := loadCampaign(tx, id)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict(apperrors.CodeReviewNotPending,
				fmt.Sprintf("Campaign has already been reviewed (status %s)", c.Status))
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("campaign reviewed",
		zap.String("campaign_id", id),
		zap.String("decision", string(status)),
		zap.Uint("admin_id", adminID),
	)
	s.publish(ctx, events.Event{
		Type:       events.Reviewed,
		CampaignID: id,
		Data:       map[string]string{"decision": string(status)},
	})
	return out, nil
}

// ListPendingReview returns the review queue, oldest submission first.
func (s *Service) ListPendingReview(ctx context.Context, actor Actor) ([]Campaign, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var out []Campaign
	err := s.db.WithContext(ctx).
		Preload("Images", orderImages).
		Where("status = ?", StatusPending).
		Order("updated_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list pending campaigns: %w", err)
	}
	return out, nil
}

// GetForAdmin returns any campaign with its images.
func (s *Service) GetForAdmin(ctx context.Context, id string, actor Actor) (*Campaign, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return loadCampaign(s.db.WithContext(ctx).Preload("Images", orderImages), id)
}
