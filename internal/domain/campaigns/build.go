package campaigns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"campaign-orchestrator/internal/apperrors"
	"campaign-orchestrator/internal/domain/media"
	"campaign-orchestrator/internal/domain/users"
	"campaign-orchestrator/internal/infra/events"
	"campaign-orchestrator/internal/infra/inference"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// maxParallelReads bounds concurrent blob reads while packaging a build.
const maxParallelReads = 4

// checkBuildable enforces the state guards of RequestBuild, in order.
func checkBuildable(c *Campaign) error {
	switch {
	case c.IsBuilt:
		return apperrors.Conflict(apperrors.CodeBuildAlreadyBuilt, "Campaign is already built")
	case c.IsBeingBuilt:
		return apperrors.Conflict(apperrors.CodeBuildInFlight, "A build is already in progress for this campaign")
	case c.Status == StatusPending:
		return apperrors.Conflict(apperrors.CodeBuildPendingReview, "Campaign is still pending review")
	case c.Status == StatusRejected:
		return apperrors.Conflict(apperrors.CodeBuildRejected, "Campaign was rejected and must be resubmitted before building")
	case c.Status != StatusApproved:
		return apperrors.Conflict(apperrors.CodeBuildNotApproved, "Campaign must be approved before building")
	}
	return nil
}

func checkCategories(t Type, counts map[media.Category]int64) error {
	for _, cat := range RequiredCategories(t) {
		if counts[cat] == 0 {
			return apperrors.Validation(apperrors.CodeBuildMissingImages,
				fmt.Sprintf("Campaign must include %s images (at least one is required)", cat)).
				WithMetadata("category", string(cat))
		}
	}
	return nil
}

func (s *Service) verifyBlobs(images []media.CampaignImage) error {
	for _, img := range images {
		ok, err := s.blobs.Exists(img.StorageKey)
		if err != nil {
			return apperrors.Internal("Could not check image storage", err)
		}
		if !ok {
			return apperrors.Integrity(apperrors.CodeBuildFileMissing,
				fmt.Sprintf("Image %q is missing from storage", img.Title), nil).
				WithMetadata("image_id", img.ID)
		}
	}
	return nil
}

// RequestBuild dispatches an approved campaign to the inference service.
//
// The in-flight flag is claimed with a compare-and-set before anything is
// sent, so two concurrent requests can never both dispatch. If packaging or
// the batch upload fails the claim is released and the campaign is left as
// it was; the caller may retry. Once the batch is accepted the claim is kept
// even if the follow-up notify fails.
func (s *Service) RequestBuild(ctx context.Context, id string, actor Actor) (*Campaign, error) {
	db := s.db.WithContext(ctx)
	c, err := loadOwned(db, id, actor)
	if err != nil {
		return nil, err
	}
	if err := checkBuildable(c); err != nil {
		return nil, err
	}

	counts, err := media.CountByCategory(db, c.ID)
	if err != nil {
		return nil, err
	}
	if err := checkCategories(c.CampaignType, counts); err != nil {
		return nil, err
	}
	images, err := media.ListByCampaign(db, c.ID)
	if err != nil {
		return nil, err
	}
	if err := s.verifyBlobs(images); err != nil {
		return nil, err
	}

	owner, err := s.users.Lookup(ctx, c.UserID)
	if err != nil && !errors.Is(err, users.ErrUnknownUser) {
		return nil, apperrors.Internal("Could not load campaign owner", err)
	}

	req, err := s.claimBuild(ctx, c)
	if err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("campaign_id", c.ID), zap.String("build_request_id", req.ID))

	batch, err := s.packageBatch(ctx, c, owner, images)
	if err != nil {
		s.releaseClaim(ctx, c.ID, req.ID, err.Error())
		return nil, err
	}

	if res := s.gateway.SendBuildBatch(ctx, batch); !res.OK {
		log.Warn("build dispatch failed", zap.Int("status", res.StatusCode), zap.Error(res.Error()))
		s.releaseClaim(ctx, c.ID, req.ID, res.Message)
		return nil, dispatchError(res)
	}
	// the batch is accepted from here on; a lost notify is left to the
	// callback deadline rather than releasing the claim and re-uploading
	if res := s.gateway.NotifyBuildCampaign(ctx, c.ID); !res.OK {
		log.Warn("build notification failed, keeping claim", zap.Int("status", res.StatusCode), zap.Error(res.Error()))
		s.noteBuildRequest(ctx, req.ID, "notify failed: "+res.Message)
	}

	log.Info("build dispatched", zap.Int("images", len(images)))
	s.publish(ctx, events.Event{
		Type:       events.BuildDispatched,
		CampaignID: c.ID,
		RelatedID:  req.ID,
		Data:       map[string]string{"images": strconv.Itoa(len(images))},
	})
	return loadCampaign(s.db.WithContext(ctx), c.ID)
}

func dispatchError(res inference.Result) error {
	code := apperrors.CodeInferenceDispatch
	if res.StatusCode == 0 && res.Err == nil {
		code = apperrors.CodeInferenceUnavailable
	}
	return apperrors.Dependency(code, "The build service is unavailable, please try again later", res.Error())
}

// claimBuild flips is_being_built false->true for the exact state the
// guards saw and records the request.
func (s *Service) claimBuild(ctx context.Context, c *Campaign) (*BuildRequest, error) {
	now := s.now()
	req := &BuildRequest{
		CampaignID:   c.ID,
		Status:       BuildPending,
		DispatchedAt: now,
		ExpiresAt:    now.Add(s.buildTimeout),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Campaign{}).
			Where("id = ? AND status = ? AND is_built = ? AND is_being_built = ?", c.ID, StatusApproved, false, false).
			Updates(map[string]interface{}{"is_being_built": true, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("claim build: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// lost the race; report whatever state won
			fresh, err := loadCampaign(tx, c.ID)
			if err != nil {
				return err
			}
			if err := checkBuildable(fresh); err != nil {
				return err
			}
			return apperrors.Conflict(apperrors.CodeCampaignConcurrentWrite, "Campaign was modified concurrently, please retry")
		}
		if err := tx.Create(req).Error; err != nil {
			return fmt.Errorf("record build request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// releaseClaim undoes claimBuild after a failed dispatch. It runs even when
// the request context is gone.
func (s *Service) releaseClaim(ctx context.Context, campaignID, requestID, reason string) {
	ctx = context.WithoutCancel(ctx)
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&Campaign{}).
			Where("id = ? AND is_built = ? AND is_being_built = ?", campaignID, false, true).
			Updates(map[string]interface{}{"is_being_built": false, "updated_at": now}).Error
		if err != nil {
			return err
		}
		return tx.Model(&BuildRequest{}).
			Where("id = ? AND status = ?", requestID, BuildPending).
			Updates(map[string]interface{}{"status": BuildFailed, "completed_at": now, "error": reason}).Error
	})
	if err != nil {
		// the sweep reclaims the flag once the request expires
		s.log.Error("release build claim failed",
			zap.String("campaign_id", campaignID),
			zap.String("build_request_id", requestID),
			zap.Error(err),
		)
	}
}

// noteBuildRequest records a non-fatal dispatch problem on a pending request.
func (s *Service) noteBuildRequest(ctx context.Context, requestID, note string) {
	err := s.db.WithContext(context.WithoutCancel(ctx)).Model(&BuildRequest{}).
		Where("id = ? AND status = ?", requestID, BuildPending).
		Update("error", note).Error
	if err != nil {
		s.log.Warn("note build request failed", zap.String("build_request_id", requestID), zap.Error(err))
	}
}

func (s *Service) packageBatch(ctx context.Context, c *Campaign, owner *users.Owner, images []media.CampaignImage) (inference.BuildBatch, error) {
	files := make([]inference.BatchImage, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := s.readBlob(img.StorageKey)
			if err != nil {
				return apperrors.Integrity(apperrors.CodeBuildFileMissing,
					fmt.Sprintf("Image %q could not be read from storage", img.Title), err).
					WithMetadata("image_id", img.ID)
			}
			files[i] = inference.BatchImage{
				Name:        img.StorageKey,
				Data:        data,
				Category:    string(img.Category),
				Title:       img.Title,
				Description: img.Description,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return inference.BuildBatch{}, err
	}

	meta := map[string]string{
		"campaignType": string(c.CampaignType),
		"modelLabel":   c.ModelLabel,
		"capabilities": strings.Join(c.Capabilities, ","),
		"userId":       strconv.FormatUint(uint64(c.UserID), 10),
	}
	if owner != nil {
		meta["userEmail"] = owner.Email
		meta["username"] = owner.Username
	}

	return inference.BuildBatch{
		CampaignID:   c.ID,
		CampaignName: c.Name,
		Images:       files,
		Metadata:     meta,
	}, nil
}

func (s *Service) readBlob(key string) ([]byte, error) {
	rc, err := s.blobs.Open(key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// BuildCallback is what the inference service reports when a build ends.
type BuildCallback struct {
	CampaignID   string
	CampaignName string
	ModelLabel   string
	Status       string
	IsModel      bool
	IsProduct    bool
}

// CompleteBuild finalizes a build. Callbacks may repeat or arrive late, so
// the update is applied only when it would change something; replaying the
// same callback leaves the row untouched.
func (s *Service) CompleteBuild(ctx context.Context, in BuildCallback) (*Campaign, error) {
	if !strings.EqualFold(strings.TrimSpace(in.Status), "ready") {
		return nil, apperrors.Validation(apperrors.CodeBuildInvalidStatus, "Build status must be ready")
	}
	typ := DeriveType(in.IsModel, in.IsProduct)
	name := strings.TrimSpace(in.CampaignName)
	label := strings.TrimSpace(in.ModelLabel)
	now := s.now()

	var (
		out     *Campaign
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := loadCampaign(tx, in.CampaignID)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if !c.IsBuilt {
			updates["is_built"] = true
			updates["build_date"] = now
		}
		if c.IsBeingBuilt {
			updates["is_being_built"] = false
		}
		if c.Status != StatusActive {
			updates["status"] = StatusActive
		}
		if c.CampaignType != typ {
			updates["campaign_type"] = typ
		}
		if name != "" && name != c.Name {
			updates["name"] = name
		}
		if label != "" && label != c.ModelLabel {
			updates["model_label"] = label
		}

		if len(updates) > 0 {
			changed = true
			updates["updated_at"] = now
			if err := tx.Model(&Campaign{}).Where("id = ?", c.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("complete build %s: %w", c.ID, err)
			}
			err := tx.Model(&BuildRequest{}).
				Where("campaign_id = ? AND status = ?", c.ID, BuildPending).
				Updates(map[string]interface{}{"status": BuildCompleted, "completed_at": now}).Error
			if err != nil {
				return fmt.Errorf("close build requests: %w", err)
			}
			if c, err = loadCampaign(tx, c.ID); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.log.Info("build completed", zap.String("campaign_id", out.ID), zap.String("type", string(out.CampaignType)))
		s.publish(ctx, events.Event{
			Type:       events.BuildCompleted,
			CampaignID: out.ID,
			Data:       map[string]string{"campaign_type": string(out.CampaignType)},
		})
	}
	return out, nil
}
