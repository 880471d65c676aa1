package campaigns_test

import (
	"testing"

	"campaign-orchestrator/internal/apperrors"
	"campaign-orchestrator/internal/domain/campaigns"
	"campaign-orchestrator/internal/domain/media"
	"campaign-orchestrator/internal/domain/users"
	"campaign-orchestrator/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCampaign(t *testing.T) {
	f := newFixture(t)

	c := f.create("model")
	assert.Equal(t, campaigns.StatusPending, c.Status)
	assert.Equal(t, campaigns.TypeModel, c.CampaignType)
	assert.False(t, c.IsBuilt)
	assert.False(t, c.IsBeingBuilt)
	assert.True(t, c.IsModelCampaign())
	assert.False(t, c.IsProductCampaign())
	assert.Equal(t, campaigns.Tags{"portraits", "packshots"}, c.Capabilities)

	ok, err := f.blobs.Exists(c.CoverKey)
	require.NoError(t, err)
	assert.True(t, ok)

	stored := f.reload(c.ID)
	assert.Equal(t, c.Capabilities, stored.Capabilities)
	assert.Equal(t, f.blobs.URL(c.CoverKey), stored.CoverURL)
}

func TestCreateCampaignValidation(t *testing.T) {
	f := newFixture(t)

	valid := func() campaigns.CreateInput {
		return campaigns.CreateInput{
			Name:         "n",
			Description:  "d",
			ModelLabel:   "m",
			Capabilities: []string{"c"},
			Cover:        upload("a.png", "x"),
		}
	}

	cases := map[string]struct {
		mutate func(*campaigns.CreateInput)
		code   apperrors.Code
	}{
		"missing name":     {func(in *campaigns.CreateInput) { in.Name = "  " }, apperrors.CodeCampaignFieldsMissing},
		"missing image":    {func(in *campaigns.CreateInput) { in.Cover = nil }, apperrors.CodeCampaignImageMissing},
		"no capabilities":  {func(in *campaigns.CreateInput) { in.Capabilities = []string{" ", ""} }, apperrors.CodeCampaignNoCapabilities},
		"no model":         {func(in *campaigns.CreateInput) { in.ModelLabel = "" }, apperrors.CodeCampaignNoCapabilities},
		"merged requested": {func(in *campaigns.CreateInput) { in.CampaignType = "MERGED" }, apperrors.CodeCampaignInvalidType},
		"unknown type":     {func(in *campaigns.CreateInput) { in.CampaignType = "VIDEO" }, apperrors.CodeCampaignInvalidType},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid()
			tc.mutate(&in)
			_, err := f.svc.Create(f.ctx, f.owner, in)
			assertKind(t, err, apperrors.KindValidation)
			assertCode(t, err, tc.code)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&campaigns.Campaign{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateCampaignRequiresVerifiedOwner(t *testing.T) {
	f := newFixture(t)
	u := testkit.SeedUser(t, f.db, "new@example.com", false, users.RoleUser)

	_, err := f.svc.Create(f.ctx, campaigns.Actor{UserID: u.ID, Role: u.Role}, campaigns.CreateInput{
		Name: "n", Description: "d", ModelLabel: "m", Capabilities: []string{"c"}, Cover: upload("a.png", "x"),
	})
	assertKind(t, err, apperrors.KindValidation)
	assertCode(t, err, apperrors.CodeOwnerUnverified)
}

func TestUpdateResubmitsDecidedCampaign(t *testing.T) {
	for _, decision := range []string{"APPROVED", "REJECTED"} {
		t.Run(decision, func(t *testing.T) {
			f := newFixture(t)
			c := f.create("")
			_, err := f.svc.Review(f.ctx, c.ID, f.admin, decision, "notes from review")
			require.NoError(t, err)

			name := "Renamed"
			got, err := f.svc.Update(f.ctx, c.ID, f.owner, campaigns.UpdateInput{Name: &name})
			require.NoError(t, err)
			assert.Equal(t, "Renamed", got.Name)
			assert.Equal(t, campaigns.StatusPending, got.Status)
			assert.Nil(t, got.AdminNotes)
		})
	}
}

func TestUpdatePendingKeepsStatus(t *testing.T) {
	f := newFixture(t)
	c := f.create("")

	desc := "new description"
	caps := []string{"a", "a", "b"}
	got, err := f.svc.Update(f.ctx, c.ID, f.owner, campaigns.UpdateInput{Description: &desc, Capabilities: &caps})
	require.NoError(t, err)
	assert.Equal(t, campaigns.StatusPending, got.Status)
	assert.Equal(t, desc, got.Description)
	assert.Equal(t, campaigns.Tags{"a", "b"}, got.Capabilities)
}

func TestUpdateReplacesCoverAfterCommit(t *testing.T) {
	f := newFixture(t)
	c := f.create("")
	oldKey := c.CoverKey

	got, err := f.svc.Update(f.ctx, c.ID, f.owner, campaigns.UpdateInput{Cover: upload("new.webp", "new-cover")})
	require.NoError(t, err)
	require.NotEqual(t, oldKey, got.CoverKey)

	ok, err := f.blobs.Exists(got.CoverKey)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.blobs.Exists(oldKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateFailureKeepsOldCover(t *testing.T) {
	f := newFixture(t)
	c := f.create("")

	_, err := f.svc.Update(f.ctx, c.ID, f.other, campaigns.UpdateInput{Cover: upload("new.png", "x")})
	assertKind(t, err, apperrors.KindForbiddenOwner)

	stored := f.reload(c.ID)
	assert.Equal(t, c.CoverKey, stored.CoverKey)
	ok, err := f.blobs.Exists(c.CoverKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateGuards(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Update(f.ctx, "missing", f.owner, campaigns.UpdateInput{Name: strPtr("x")})
	assertKind(t, err, apperrors.KindNotFound)

	c := f.create("")
	_, err = f.svc.Update(f.ctx, c.ID, f.owner, campaigns.UpdateInput{})
	assertKind(t, err, apperrors.KindValidation)

	_, err = f.svc.Update(f.ctx, c.ID, f.owner, campaigns.UpdateInput{Name: strPtr(" ")})
	assertKind(t, err, apperrors.KindValidation)

	built := f.built(false, false)
	_, err = f.svc.Update(f.ctx, built.ID, f.owner, campaigns.UpdateInput{Name: strPtr("x")})
	assertKind(t, err, apperrors.KindForbidden)
	assertCode(t, err, apperrors.CodeCampaignBuilt)
}

func TestDeleteCampaign(t *testing.T) {
	f := newFixture(t)
	c := f.create("")
	img := f.addImage(c.ID, "person")

	err := f.svc.Delete(f.ctx, c.ID, f.other)
	assertKind(t, err, apperrors.KindForbiddenOwner)

	require.NoError(t, f.svc.Delete(f.ctx, c.ID, f.owner))

	var count int64
	require.NoError(t, f.db.Model(&campaigns.Campaign{}).Where("id = ?", c.ID).Count(&count).Error)
	assert.Zero(t, count)
	images, err := media.ListByCampaign(f.db, c.ID)
	require.NoError(t, err)
	assert.Empty(t, images)

	for _, key := range []string{c.CoverKey, img.StorageKey} {
		ok, err := f.blobs.Exists(key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}

	err = f.svc.Delete(f.ctx, c.ID, f.owner)
	assertKind(t, err, apperrors.KindNotFound)
}

func TestDeleteBuiltCampaignForbidden(t *testing.T) {
	f := newFixture(t)
	c := f.built(true, false)

	err := f.svc.Delete(f.ctx, c.ID, f.owner)
	assertKind(t, err, apperrors.KindForbidden)
	assert.Equal(t, c.ID, f.reload(c.ID).ID)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	a := f.create("")
	f.addImage(a.ID, "product")
	f.create("product")

	got, err := f.svc.Get(f.ctx, a.ID, f.owner)
	require.NoError(t, err)
	assert.Len(t, got.Images, 1)

	_, err = f.svc.Get(f.ctx, a.ID, f.other)
	assertKind(t, err, apperrors.KindForbiddenOwner)

	list, err := f.svc.List(f.ctx, f.owner)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = f.svc.List(f.ctx, f.other)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func strPtr(s string) *string {
	return &s
}
