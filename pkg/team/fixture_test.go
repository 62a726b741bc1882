package team

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"workspace-team-backend/pkg/database"
	"workspace-team-backend/pkg/logging"
	"workspace-team-backend/pkg/metrics"
	"workspace-team-backend/pkg/models"
)

// fakeClock is a settable clock shared by a fixture.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *database.SQLDatabase
	svc     *Service
	clock   *fakeClock
	reg     *prometheus.Registry
}

const ownerID = "owner"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "team.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Now().UTC().Truncate(time.Millisecond)}
	svc := NewService(store, Options{
		Logger:  logging.Discard(),
		Metrics: m,
		Now:     clock.Now,
	})
	return &fixture{t: t, ctx: context.Background(), store: store, svc: svc, clock: clock, reg: reg}
}

func (f *fixture) user(id, email string) *models.User {
	f.t.Helper()
	u := &models.User{ID: id, Email: email, Name: id}
	require.NoError(f.t, f.store.CreateUser(f.ctx, u))
	return u
}

// workspace creates a workspace owned by ownerID.
func (f *fixture) workspace(id string, maxMembers int) *models.Workspace {
	f.t.Helper()
	if _, err := f.store.GetUserByID(f.ctx, ownerID); err != nil {
		f.user(ownerID, "owner@x.com")
	}
	ws := &models.Workspace{ID: id, Name: id, OwnerID: ownerID, MaxMembers: maxMembers}
	require.NoError(f.t, f.store.CreateWorkspace(f.ctx, ws))
	return ws
}

func (f *fixture) group(id, workspaceID string) *models.Group {
	f.t.Helper()
	g := &models.Group{ID: id, WorkspaceID: workspaceID, Name: id}
	require.NoError(f.t, f.store.CreateGroup(f.ctx, g))
	return g
}

// member adds userID directly as the owner.
func (f *fixture) member(workspaceID, userID string, role models.Role) *models.WorkspaceMember {
	f.t.Helper()
	m, err := f.svc.AddMember(f.ctx, workspaceID, ownerID, userID, role)
	require.NoError(f.t, err)
	return m
}

func (f *fixture) users(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", prefix, i)
		f.user(ids[i], ids[i]+"@x.com")
	}
	return ids
}

func intPtr(v int) *int { return &v }
