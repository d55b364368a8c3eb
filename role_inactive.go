package raft

// inactiveRole is held by a server that is not part of any configuration
// yet. It accepts nothing except a ConfigureRequest admitting it (handled
// generically by RaftContext.HandleConfigure, which transitions the role
// before dispatching here), per the resolved Open Question that an
// Inactive server waits passively rather than polling to join.
type inactiveRole struct {
	baseRole
}

func (r *inactiveRole) Kind() RoleKind { return RoleInactive }

func (r *inactiveRole) HandleConfigure(ctx *RaftContext, req *ConfigureRequest) *ConfigureResponse {
	applyConfigurationIfPresent(ctx, req)
	return &ConfigureResponse{Status: StatusOK}
}
