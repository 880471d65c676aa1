package campaigns_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campaign-orchestrator/internal/apperrors"
	"campaign-orchestrator/internal/domain/campaigns"
	"campaign-orchestrator/internal/domain/media"
	"campaign-orchestrator/internal/domain/users"
	"campaign-orchestrator/internal/infra/blobstore"
	"campaign-orchestrator/internal/infra/events"
	"campaign-orchestrator/internal/infra/inference"
	"campaign-orchestrator/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeGateway struct {
	fail       atomic.Bool
	failNotify atomic.Bool

	mu       sync.Mutex
	batches  []inference.BuildBatch
	notified []string
	merges   [][2]string
}

func (g *fakeGateway) result() inference.Result {
	if g.fail.Load() {
		return inference.Result{Message: "inference call failed", Err: errors.New("dial tcp: connection refused")}
	}
	return inference.Result{OK: true, StatusCode: 202}
}

func (g *fakeGateway) SendBuildBatch(_ context.Context, b inference.BuildBatch) inference.Result {
	g.mu.Lock()
	g.batches = append(g.batches, b)
	g.mu.Unlock()
	return g.result()
}

func (g *fakeGateway) NotifyBuildCampaign(_ context.Context, id string) inference.Result {
	g.mu.Lock()
	g.notified = append(g.notified, id)
	g.mu.Unlock()
	if g.failNotify.Load() {
		return inference.Result{Message: "notify failed: timeout", Err: errors.New("context deadline exceeded")}
	}
	return g.result()
}

func (g *fakeGateway) RequestMerge(_ context.Context, m, p string) inference.Result {
	g.mu.Lock()
	g.merges = append(g.merges, [2]string{m, p})
	g.mu.Unlock()
	return g.result()
}

func (g *fakeGateway) batchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.batches)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	db    *gorm.DB
	svc   *campaigns.Service
	gw    *fakeGateway
	pub   *recordingPublisher
	blobs *blobstore.LocalStore
	clock *clock
	owner campaigns.Actor
	other campaigns.Actor
	admin campaigns.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testkit.OpenDB(t)
	blobs, err := blobstore.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		db:    db,
		gw:    &fakeGateway{},
		pub:   &recordingPublisher{},
		blobs: blobs,
		clock: &clock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
	}

	owner := testkit.SeedUser(t, db, "owner@example.com", true, users.RoleUser)
	other := testkit.SeedUser(t, db, "other@example.com", true, users.RoleUser)
	admin := testkit.SeedUser(t, db, "admin@example.com", true, users.RoleAdmin)
	f.owner = campaigns.Actor{UserID: owner.ID, Role: owner.Role}
	f.other = campaigns.Actor{UserID: other.ID, Role: other.Role}
	f.admin = campaigns.Actor{UserID: admin.ID, Role: admin.Role}

	f.svc = campaigns.NewService(campaigns.Deps{
		DB:           db,
		Users:        users.NewGormDirectory(db),
		Blobs:        blobs,
		Gateway:      f.gw,
		Events:       f.pub,
		Logger:       zap.NewNop(),
		BuildTimeout: time.Hour,
		Now:          f.clock.Now,
	})
	return f
}

func upload(name, body string) *campaigns.Upload {
	return &campaigns.Upload{Filename: name, Body: strings.NewReader(body)}
}

func (f *fixture) create(typ string) *campaigns.Campaign {
	f.t.Helper()
	c, err := f.svc.Create(f.ctx, f.owner, campaigns.CreateInput{
		Name:         "Summer launch",
		Description:  "Beach products",
		ModelLabel:   "flux-dev",
		Capabilities: []string{"portraits", "packshots"},
		CampaignType: typ,
		Cover:        upload("cover.jpg", "cover-bytes"),
	})
	require.NoError(f.t, err)
	return c
}

func (f *fixture) addImage(campaignID, title string) *media.CampaignImage {
	f.t.Helper()
	img, err := f.svc.AddImage(f.ctx, campaignID, f.owner, campaigns.ImageInput{
		File:        upload("shot.png", "image:"+title),
		Title:       title,
		Description: "prompt for " + title,
	})
	require.NoError(f.t, err)
	return img
}

func (f *fixture) approve(id string) *campaigns.Campaign {
	f.t.Helper()
	c, err := f.svc.Review(f.ctx, id, f.admin, "APPROVED", "looks good")
	require.NoError(f.t, err)
	return c
}

// buildable returns an approved STANDARD campaign with one image of each
// required category.
func (f *fixture) buildable() *campaigns.Campaign {
	f.t.Helper()
	c := f.create("STANDARD")
	f.addImage(c.ID, "Product bottle")
	f.addImage(c.ID, "Person on beach")
	return f.approve(c.ID)
}

// built runs a campaign through dispatch and completion.
func (f *fixture) built(isModel, isProduct bool) *campaigns.Campaign {
	f.t.Helper()
	c := f.buildable()
	_, err := f.svc.RequestBuild(f.ctx, c.ID, f.owner)
	require.NoError(f.t, err)
	out, err := f.svc.CompleteBuild(f.ctx, campaigns.BuildCallback{
		CampaignID: c.ID, Status: "ready", IsModel: isModel, IsProduct: isProduct,
	})
	require.NoError(f.t, err)
	return out
}

func (f *fixture) reload(id string) campaigns.Campaign {
	f.t.Helper()
	var c campaigns.Campaign
	require.NoError(f.t, f.db.First(&c, "id = ?", id).Error)
	return c
}

func assertKind(t *testing.T, err error, kind apperrors.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperrors.KindOf(err), "error: %v", err)
}

func assertCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.CodeOf(err), "error: %v", err)
}
