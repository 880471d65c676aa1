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

func mergeable(c *Campaign) error {
	if c.Status != StatusActive || !c.IsBuilt {
		return apperrors.Conflict(apperrors.CodeMergeNotEligible,
			fmt.Sprintf("Campaign %q must be built and active to be merged", c.Name)).
			WithMetadata("campaign_id", c.ID)
	}
	return nil
}

// RequestMerge asks the inference service to fuse a built model campaign
// with a built product campaign. Nothing changes locally until the merge
// callback arrives.
func (s *Service) RequestMerge(ctx context.Context, actor Actor, modelID, productID string) error {
	modelID, productID = strings.TrimSpace(modelID), strings.TrimSpace(productID)
	if modelID == "" || productID == "" {
		return apperrors.Validation(apperrors.CodeCampaignFieldsMissing, "Both campaign ids are required")
	}
	if modelID == productID {
		return apperrors.Validation(apperrors.CodeMergeSameCampaign, "A campaign cannot be merged with itself")
	}

	db := s.db.WithContext(ctx)
	model, err := loadOwned(db, modelID, actor)
	if err != nil {
		return err
	}
	product, err := loadOwned(db, productID, actor)
	if err != nil {
		return err
	}
	if err := mergeable(model); err != nil {
		return err
	}
	if err := mergeable(product); err != nil {
		return err
	}
	if !model.IsModelCampaign() {
		return apperrors.Validation(apperrors.CodeMergeWrongType, "The first campaign must be a model campaign")
	}
	if !product.IsProductCampaign() {
		return apperrors.Validation(apperrors.CodeMergeWrongType, "The second campaign must be a product campaign")
	}

	if res := s.gateway.RequestMerge(ctx, modelID, productID); !res.OK {
		s.log.Warn("merge dispatch failed",
			zap.String("model_campaign_id", modelID),
			zap.String("product_campaign_id", productID),
			zap.Error(res.Error()),
		)
		return dispatchError(res)
	}

	s.publish(ctx, events.Event{Type: events.MergeRequested, CampaignID: modelID, RelatedID: productID})
	return nil
}

// ParseMergeOutcome normalizes the outcome reported by the service.
func ParseMergeOutcome(outcome string) (MergeStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(outcome)) {
	case "SUCCESS", string(MergeCompleted):
		return MergeCompleted, nil
	case string(MergeFailed):
		return MergeFailed, nil
	}
	return "", apperrors.Validation(apperrors.CodeMergeInvalidOutcome, "Outcome must be SUCCESS or FAILED")
}

// CompleteMerge records a merge outcome on both campaigns in one
// transaction: either both rows change or neither does. Replaying the same
// outcome converges on the same state.
func (s *Service) CompleteMerge(ctx context.Context, modelID, productID, outcome string) ([]Campaign, error) {
	status, err := ParseMergeOutcome(outcome)
	if err != nil {
		return nil, err
	}
	if modelID == productID {
		return nil, apperrors.Validation(apperrors.CodeMergeSameCampaign, "A campaign cannot be merged with itself")
	}
	now := s.now()

	out := make([]Campaign, 0, 2)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// both must exist before either is written
		for _, id := range []string{modelID, productID} {
			if _, err := loadCampaign(tx, id); err != nil {
				return err
			}
		}
		for _, id := range []string{modelID, productID} {
			res := tx.Model(&Campaign{}).
				Where("id = ?", id).
				Updates(map[string]interface{}{"merge_status": status, "merge_date": now, "updated_at": now})
			if res.Error != nil {
				return fmt.Errorf("record merge on %s: %w", id, res.Error)
			}
			if res.RowsAffected != 1 {
				return fmt.Errorf("record merge on %s: %d rows affected", id, res.RowsAffected)
			}
			c, err := loadCampaign(tx, id)
			if err != nil {
				return err
			}
			out = append(out, *c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("merge completed",
		zap.String("model_campaign_id", modelID),
		zap.String("product_campaign_id", productID),
		zap.String("outcome", string(status)),
	)
	s.publish(ctx, events.Event{
		Type:       events.MergeCompleted,
		CampaignID: modelID,
		RelatedID:  productID,
		Data:       map[string]string{"outcome": string(status)},
	})
	return out, nil
}
