package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawn-project/dawnnode/internal/audit"
)

func newTestAuthorizer(t *testing.T) (*Authorizer, *audit.Log) {
	t.Helper()
	dir := t.TempDir()
	log, err := audit.Open(dir, "node-a")
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return New(log), log
}

func TestCheckDeniesByDefault(t *testing.T) {
	a, _ := newTestAuthorizer(t)
	assert.False(t, a.Check("peer-1", PermissionAgentExecute))
}

func TestGrantThenCheckAllows(t *testing.T) {
	a, _ := newTestAuthorizer(t)
	a.Grant("peer-1", PermissionAgentExecute)
	assert.True(t, a.Check("peer-1", PermissionAgentExecute))
	assert.False(t, a.Check("peer-1", PermissionNodeAdmin))
}

func TestRevokeRemovesPermission(t *testing.T) {
	a, _ := newTestAuthorizer(t)
	a.Grant("peer-1", PermissionAgentExecute)
	a.Revoke("peer-1", PermissionAgentExecute)
	assert.False(t, a.Check("peer-1", PermissionAgentExecute))
}

func TestCheckDenialEmitsAuditEvent(t *testing.T) {
	a, log := newTestAuthorizer(t)
	a.Check("peer-1", PermissionAgentExecute)

	events, err := log.Query(audit.Query{Kind: "ACCESS_DENIED"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "peer-1", events[0].PeerID)
}

func TestPermissionsReturnsSnapshot(t *testing.T) {
	a, _ := newTestAuthorizer(t)
	a.Grant("peer-1", PermissionAgentExecute)
	a.Grant("peer-1", PermissionPeerManage)

	perms := a.Permissions("peer-1")
	assert.Len(t, perms, 2)
	assert.Empty(t, a.Permissions("unknown-peer"))
}
