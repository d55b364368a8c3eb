package raft

// reserveRole is held by a member the cluster tracks but deliberately
// excludes from replication and voting. It answers Configure (so it learns
// about further membership changes, including its own promotion) and
// Metadata-style introspection, but nothing that would require it to carry
// state, matching member.go's description of Reserve.
type reserveRole struct {
	baseRole
}

func (r *reserveRole) Kind() RoleKind { return RoleReserve }

func (r *reserveRole) HandleConfigure(ctx *RaftContext, req *ConfigureRequest) *ConfigureResponse {
	applyConfigurationIfPresent(ctx, req)
	return &ConfigureResponse{Status: StatusOK}
}
