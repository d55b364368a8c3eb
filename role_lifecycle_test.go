package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoleKindStringCoversEveryVariant guards against a RoleKind being
// added without a matching String() case (which panics rather than
// silently printing a number).
func TestRoleKindStringCoversEveryVariant(t *testing.T) {
	kinds := []RoleKind{RoleInactive, RoleReserve, RolePassive, RoleFollower, RoleCandidate, RoleLeader}
	names := map[string]bool{}
	for _, k := range kinds {
		names[k.String()] = true
	}
	assert.Len(t, names, len(kinds))
}

func TestNewRoleConstructsMatchingKind(t *testing.T) {
	kinds := []RoleKind{RoleInactive, RoleReserve, RolePassive, RoleFollower, RoleCandidate, RoleLeader}
	for _, k := range kinds {
		assert.Equal(t, k, newRole(k).Kind())
	}
}

// TestInactiveServerIsAdmittedOnConfigureNamingIt exercises the resolved
// Open Question that an Inactive server is admitted passively: it never
// polls to join, but a ConfigureRequest naming it flips its role the
// moment RaftContext.HandleConfigure observes it.
func TestInactiveServerIsAdmittedOnConfigureNamingIt(t *testing.T) {
	cfg := oneMemberConfig("a", "localhost:1")
	ctx := newTestContext(t, "b", nil, cfg)
	ctx.Start()
	t.Cleanup(ctx.Stop)

	ctx.run(func() { require.Equal(t, RoleInactive, ctx.role) })

	newCfg := NewConfiguration(1, 0, map[string]Member{
		"a": {ID: "a", Address: "localhost:1", Type: Active},
		"b": {ID: "b", Address: "localhost:2", Type: Passive},
	})

	resp := ctx.HandleConfigure(&ConfigureRequest{Configuration: newCfg})
	require.Equal(t, StatusOK, resp.Status)

	ctx.run(func() { assert.Equal(t, RolePassive, ctx.role) })
}

// TestConfigureDemotesMemberToReserve checks the symmetric demotion path:
// a ConfigureRequest naming a currently Passive member as Reserve moves it
// out of replication without removing it from the configuration.
func TestConfigureDemotesMemberToReserve(t *testing.T) {
	startCfg := NewConfiguration(0, 0, map[string]Member{
		"a": {ID: "a", Address: "localhost:1", Type: Active},
		"b": {ID: "b", Address: "localhost:2", Type: Passive},
	})
	ctx := newTestContext(t, "b", nil, startCfg)
	ctx.Start()
	t.Cleanup(ctx.Stop)

	ctx.run(func() { require.Equal(t, RolePassive, ctx.role) })

	newCfg := NewConfiguration(1, 0, map[string]Member{
		"a": {ID: "a", Address: "localhost:1", Type: Active},
		"b": {ID: "b", Address: "localhost:2", Type: Reserve},
	})

	resp := ctx.HandleConfigure(&ConfigureRequest{Configuration: newCfg})
	require.Equal(t, StatusOK, resp.Status)

	ctx.run(func() { assert.Equal(t, RoleReserve, ctx.role) })
}
