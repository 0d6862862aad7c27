package catalog

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/shared"
)

func newTestService(store *memStore) (*Service, *stubDetacher) {
	detacher := &stubDetacher{}
	registrar := NewRegistrar(store, nil, time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, registrar, detacher, "web", logger), detacher
}

func TestCreatePermissionDefaultsGuard(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)

	p, err := svc.CreatePermission(context.Background(), CreateInput{Name: "read", State: StateEnabled})
	require.NoError(t, err)

	assert.Equal(t, "web", p.Guard)
	assert.NotZero(t, p.ID)
}

func TestCreatePermissionRejectsDuplicate(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	_, err := svc.CreatePermission(ctx, CreateInput{Name: "read", State: StateEnabled})
	require.NoError(t, err)

	_, err = svc.CreatePermission(ctx, CreateInput{Name: "read", State: StateEnabled})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrAlreadyExists))

	// Same name under another guard is a distinct permission.
	_, err = svc.CreatePermission(ctx, CreateInput{Guard: "api", Name: "read", State: StateEnabled})
	assert.NoError(t, err)
}

func TestCreateRoleRejectsDuplicate(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, CreateInput{Name: "editor", State: StateEnabled})
	require.NoError(t, err)

	_, err = svc.CreateRole(ctx, CreateInput{Name: "editor", State: StateEnabled})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrAlreadyExists))
}

func TestFindRoleMissReturnsNotFound(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)

	_, err := svc.FindRole(context.Background(), ByName("phantom"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestDeleteRoleDetachesPivotsFirst(t *testing.T) {
	store := newMemStore()
	svc, detacher := newTestService(store)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, CreateInput{Name: "editor", State: StateEnabled})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRole(ctx, role.ID))

	assert.Equal(t, []int64{role.ID}, detacher.roleIDs)
	gone, err := store.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDeletePermissionDetachesPivots(t *testing.T) {
	store := newMemStore()
	svc, detacher := newTestService(store)
	ctx := context.Background()

	p, err := svc.CreatePermission(ctx, CreateInput{Name: "read", State: StateEnabled})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePermission(ctx, p.ID))
	assert.Equal(t, []int64{p.ID}, detacher.permissionIDs)
}

func TestCreateSectionValidatesParent(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	missing := int64(99)
	_, err := svc.CreateSection(ctx, CreateInput{Name: "orphan", State: StateEnabled}, nil, &missing, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	foreign, err := svc.CreateSection(ctx, CreateInput{Guard: "api", Name: "root", State: StateEnabled}, nil, nil, 0)
	require.NoError(t, err)

	_, err = svc.CreateSection(ctx, CreateInput{Name: "child", State: StateEnabled}, nil, &foreign.ID, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrGuardMismatch))
}

func TestWritesInvalidateRegistrar(t *testing.T) {
	store := newMemStore()
	registrar := NewRegistrar(store, testRedis(t), time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, registrar, &stubDetacher{}, "web", logger)
	ctx := context.Background()

	created, err := svc.CreatePermission(ctx, CreateInput{Name: "read", State: StateEnabled})
	require.NoError(t, err)

	// The create pre-check primed the cache without the new row; the write
	// must have flushed it so the follow-up lookup sees the permission.
	found, err := svc.FindPermission(ctx, ByName("read"), "web")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}
