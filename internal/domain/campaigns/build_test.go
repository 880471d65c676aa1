package campaigns_test

import (
	"sync"
	"testing"
	"time"

	"campaign-orchestrator/internal/apperrors"
	"campaign-orchestrator/internal/domain/campaigns"
	"campaign-orchestrator/internal/infra/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelCampaignWithoutPersonImagesCannotBuild(t *testing.T) {
	f := newFixture(t)
	c := f.create("MODEL")
	f.addImage(c.ID, "product bottle")
	f.approve(c.ID)

	_, err := f.svc.RequestBuild(f.ctx, c.ID, f.owner)
	assertKind(t, err, apperrors.KindValidation)
	assertCode(t, err, apperrors.CodeBuildMissingImages)
	assert.Contains(t, err.Error(), "person images")
	assert.Zero(t, f.gw.batchCount())
}

func TestRequiredCategoriesByType(t *testing.T) {
	cases := []struct {
		typ     string
		titles  []string
		missing string
	}{
		{"PRODUCT", []string{"person"}, "product images"},
		{"PRODUCT", []string{"product"}, ""},
		{"MODEL", []string{"person"}, ""},
		{"STANDARD", []string{"person"}, "product images"},
		{"STANDARD", []string{"product"}, "person images"},
	}
	for _, tc := range cases {
		t.Run(tc.typ+"/"+tc.missing, func(t *testing.T) {
			f := newFixture(t)
			c := f.create(tc.typ)
			for _, title := range tc.titles {
				f.addImage(c.ID, title)
			}
			f.approve(c.ID)

			_, err := f.svc.RequestBuild(f.ctx, c.ID, f.owner)
			if tc.missing == "" {
				require.NoError(t, err)
				return
			}
			assertKind(t, err, apperrors.KindValidation)
			assert.Contains(t, err.Error(), tc.missing)
		})
	}
}

func TestRequestBuildDispatchesOnce(t *testing.T) {
	f := newFixture(t)
	c := f.buildable()

	got, err := f.svc.RequestBuild(f.ctx, c.ID, f.owner)
	require.NoError(t, err)
	assert.True(t, got.IsBeingBuilt)
	assert.False(t, got.IsBuilt)

	require.Equal(t, 1, f.gw.batchCount())
	batch := f.gw.batches[0]
	assert.Equal(t, c.ID, batch.CampaignID)
	assert.Equal(t, c.Name, batch.CampaignName)
	assert.Len(t, batch.Images, 2)
	assert.Equal(t, "owner@example.com", batch.Metadata["userEmail"])
	assert.Equal(t, []string{c.ID}, f.gw.notified)

	var reqs []campaigns.BuildRequest
	require.NoError(t, f.db.Where("campaign_id = ?", c.ID).Find(&reqs).Error)
	require.Len(t, reqs, 1)
	assert.Equal(t, campaigns.BuildPending, reqs[0].Status)

	_, err = f.svc.RequestBuild(f.ctx, c.ID, f.owner)
	assertKind(t, err, apperrors.KindConflict)
	assertCode(t, err, apperrors.CodeBuildInFlight)
	assert.Equal(t, 1, f.gw.batchCount())
	assert.Contains(t, f.pub.types(), events.BuildDispatched)
}

func TestRequestBuildGuards(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestBuild(f.ctx, "missing", f.owner)
	assertKind(t, err, apperrors.KindNotFound)

	pending := f.create("")
	f.addImage(pending.ID, "product")
	f.addImage(pending.ID, "person")
	_, err = f.svc.RequestBuild(f.ctx, pending.ID, f.other)
	assertKind(t, err, apperrors.KindForbiddenOwner)

	_, err = f.svc.RequestBuild(f.ctx, pending.ID, f.owner)
	assertCode(t, err, apperrors.CodeBuildPendingReview)
	assert.Contains(t, err.Error(), "pending review")

	_, err = f.svc.Review(f.ctx, pending.ID, f.admin, "REJECTED", "blurry")
	require.NoError(t, err)
	_, err = f.svc.RequestBuild(f.ctx, pending.ID, f.owner)
	assertKind(t, err, apperrors.KindConflict)
	assertCode(t, err, apperrors.CodeBuildRejected)
	assert.Contains(t, err.Error(), "rejected")

	built := f.built(false, false)
	_, err = f.svc.RequestBuild(f.ctx, built.ID, f.owner)
	assertCode(t, err, apperrors.CodeBuildAlreadyBuilt)
}

func TestRequestBuildMissingBlobIsIntegrityError(t *testing.T) {
	f := newFixture(t)
	c := f.buildable()
	images, err := f.svc.ListImages(f.ctx, c.ID, f.owner)
	require.NoError(t, err)
	require.NoError(t, f.blobs.Delete(images[1].StorageKey))

	_, err = f.svc.RequestBuild(f.ctx, c.ID, f.owner)
	assertKind(t, err, apperrors.KindIntegrity)
	assertCode(t, err, apperrors.CodeBuildFileMissing)
	assert.False(t, f.reload(c.ID).IsBeingBuilt)
	assert.Zero(t, f.gw.batchCount())
}

func TestGatewayFailureLeavesCampaignRetryable(t *testing.T) {
	f := newFixture(t)
	c := f.buildable()

	f.gw.fail.Store(true)
	_, err := f.svc.RequestBuild(f.ctx, c.ID, f.owner)
	assertKind(t, err, apperrors.KindDependency)
	assert.True(t, apperrors.KindOf(err).Retryable())

	stored := f.reload(c.ID)
	assert.False(t, stored.IsBeingBuilt)
	assert.Equal(t, campaigns.StatusApproved, stored.Status)

	var failed campaigns.BuildRequest
	require.NoError(t, f.db.Where("campaign_id = ?", c.ID).First(&failed).Error)
	assert.Equal(t, campaigns.BuildFailed, failed.Status)

	f.gw.fail.Store(false)
	got, err := f.svc.RequestBuild(f.ctx, c.ID, f.owner)
	require.NoError(t, err)
	assert.True(t, got.IsBeingBuilt)
}

func TestNotifyFailureKeepsAcceptedBatchInFlight(t *testing.T) {
	f := newFixture(t)
	c := f.buildable()

	f.gw.failNotify.Store(true)
	got, err := f.svc.RequestBuild(f.ctx, c.ID, f.owner)
	require.NoError(t, err)
	assert.True(t, got.IsBeingBuilt)
	assert.True(t, f.reload(c.ID).IsBeingBuilt)
	assert.Equal(t, 1, f.gw.batchCount())

	var req campaigns.BuildRequest
	require.NoError(t, f.db.Where("campaign_id = ?", c.ID).First(&req).Error)
	assert.Equal(t, campaigns.BuildPending, req.Status)
	assert.Contains(t, req.Error, "notify failed")

	f.gw.failNotify.Store(false)
	_, err = f.svc.RequestBuild(f.ctx, c.ID, f.owner)
	assertKind(t, err, apperrors.KindConflict)
	assertCode(t, err, apperrors.CodeBuildInFlight)
	assert.Equal(t, 1, f.gw.batchCount(), "the batch is not uploaded twice")
}

func TestConcurrentBuildRequestsDispatchOnce(t *testing.T) {
	f := newFixture(t)
	c := f.buildable()

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RequestBuild(f.ctx, c.ID, f.owner)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.KindOf(err) == apperrors.KindConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
	assert.Equal(t, 1, f.gw.batchCount())
}

func TestCompleteBuildDerivesMergedType(t *testing.T) {
	f := newFixture(t)
	c := f.buildable()
	_, err := f.svc.RequestBuild(f.ctx, c.ID, f.owner)
	require.NoError(t, err)

	got, err := f.svc.CompleteBuild(f.ctx, campaigns.BuildCallback{
		CampaignID:   c.ID,
		CampaignName: "Final name",
		ModelLabel:   "lora-v2",
		Status:       "READY",
		IsModel:      true,
		IsProduct:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, campaigns.TypeMerged, got.CampaignType)
	assert.True(t, got.IsBuilt)
	assert.Equal(t, campaigns.StatusActive, got.Status)
	assert.False(t, got.IsBeingBuilt)
	assert.True(t, got.IsModelCampaign())
	assert.True(t, got.IsProductCampaign())
	assert.Equal(t, "Final name", got.Name)
	assert.Equal(t, "lora-v2", got.ModelLabel)
	require.NotNil(t, got.BuildDate)

	var req campaigns.BuildRequest
	require.NoError(t, f.db.Where("campaign_id = ?", c.ID).First(&req).Error)
	assert.Equal(t, campaigns.BuildCompleted, req.Status)
}

func TestCompleteBuildIsIdempotent(t *testing.T) {
	f := newFixture(t)
	c := f.built(true, false)
	before := f.reload(c.ID)
	published := len(f.pub.types())

	f.clock.Advance(10 * time.Minute)
	again, err := f.svc.CompleteBuild(f.ctx, campaigns.BuildCallback{CampaignID: c.ID, Status: "ready", IsModel: true})
	require.NoError(t, err)
	assert.Equal(t, campaigns.TypeModel, again.CampaignType)

	after := f.reload(c.ID)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	assert.True(t, before.BuildDate.Equal(*after.BuildDate))
	assert.Len(t, f.pub.types(), published)

	// a differing replay converges on the new values but keeps the build date
	changed, err := f.svc.CompleteBuild(f.ctx, campaigns.BuildCallback{CampaignID: c.ID, Status: "ready", IsProduct: true})
	require.NoError(t, err)
	assert.Equal(t, campaigns.TypeProduct, changed.CampaignType)
	assert.True(t, before.BuildDate.Equal(*changed.BuildDate))
}

func TestCompleteBuildRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	c := f.buildable()

	_, err := f.svc.CompleteBuild(f.ctx, campaigns.BuildCallback{CampaignID: c.ID, Status: "failed"})
	assertKind(t, err, apperrors.KindValidation)
	assertCode(t, err, apperrors.CodeBuildInvalidStatus)
	assert.False(t, f.reload(c.ID).IsBuilt)

	_, err = f.svc.CompleteBuild(f.ctx, campaigns.BuildCallback{CampaignID: "ghost", Status: "ready"})
	assertKind(t, err, apperrors.KindNotFound)

	var count int64
	require.NoError(t, f.db.Model(&campaigns.Campaign{}).Where("id = ?", "ghost").Count(&count).Error)
	assert.Zero(t, count)
}

func TestBuiltImpliesActive(t *testing.T) {
	f := newFixture(t)
	for _, flags := range [][2]bool{{false, false}, {true, false}, {false, true}, {true, true}} {
		c := f.built(flags[0], flags[1])
		stored := f.reload(c.ID)
		assert.True(t, stored.IsBuilt)
		assert.Equal(t, campaigns.StatusActive, stored.Status)
		assert.False(t, stored.IsBeingBuilt)
		assert.Equal(t, campaigns.DeriveType(flags[0], flags[1]), stored.CampaignType)
	}
}
