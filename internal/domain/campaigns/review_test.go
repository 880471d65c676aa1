package campaigns_test

import (
	"testing"

	"campaign-orchestrator/internal/apperrors"
	"campaign-orchestrator/internal/domain/campaigns"
	"campaign-orchestrator/internal/infra/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewRecordsDecision(t *testing.T) {
	f := newFixture(t)
	c := f.create("")

	got, err := f.svc.Review(f.ctx, c.ID, f.admin, "approved", " fine ")
	require.NoError(t, err)
	assert.Equal(t, campaigns.StatusApproved, got.Status)
	require.NotNil(t, got.AdminID)
	assert.Equal(t, f.admin.UserID, *got.AdminID)
	require.NotNil(t, got.AdminNotes)
	assert.Equal(t, "fine", *got.AdminNotes)
	assert.NotNil(t, got.ReviewedAt)
	assert.False(t, got.IsBuilt)
	assert.Contains(t, f.pub.types(), events.Reviewed)
}

func TestReviewGuards(t *testing.T) {
	f := newFixture(t)
	c := f.create("")

	_, err := f.svc.Review(f.ctx, c.ID, f.owner, "APPROVED", "")
	assertKind(t, err, apperrors.KindForbidden)
	assertCode(t, err, apperrors.CodeAdminOnly)

	_, err = f.svc.Review(f.ctx, c.ID, f.admin, "ACTIVE", "")
	assertCode(t, err, apperrors.CodeReviewInvalidDecision)

	_, err = f.svc.Review(f.ctx, "missing", f.admin, "APPROVED", "")
	assertKind(t, err, apperrors.KindNotFound)
}

func TestReviewTwiceConflictsWithoutChanges(t *testing.T) {
	f := newFixture(t)
	c := f.create("")
	f.approve(c.ID)
	before := f.reload(c.ID)

	_, err := f.svc.Review(f.ctx, c.ID, f.admin, "REJECTED", "changed my mind")
	assertKind(t, err, apperrors.KindConflict)
	assertCode(t, err, apperrors.CodeReviewNotPending)

	after := f.reload(c.ID)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.AdminNotes, after.AdminNotes)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
}

func TestPendingQueueAndAdminRead(t *testing.T) {
	f := newFixture(t)
	a := f.create("")
	b := f.create("")
	f.approve(b.ID)

	_, err := f.svc.ListPendingReview(f.ctx, f.owner)
	assertKind(t, err, apperrors.KindForbidden)

	queue, err := f.svc.ListPendingReview(f.ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, a.ID, queue[0].ID)

	got, err := f.svc.GetForAdmin(f.ctx, b.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, campaigns.StatusApproved, got.Status)

	_, err = f.svc.GetForAdmin(f.ctx, b.ID, f.owner)
	assertKind(t, err, apperrors.KindForbidden)
}
