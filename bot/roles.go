package bot

// rolePrecedence maps chat badges to roles in priority order; the first badge
// a user carries decides their effective role. The founder badge replaces the
// subscriber badge for a channel's earliest subscribers, so it maps to the
// same tier.
var rolePrecedence = []struct {
	badge string
	role  Role
}{
	{"broadcaster", RoleBroadcaster},
	{"moderator", RoleModerator},
	{"vip", RoleVIP},
	{"subscriber", RoleSubscriber},
	{"founder", RoleSubscriber},
}

// ResolveRole derives a user's single effective role from their badges.
// Users with no recognized badge are viewers.
func ResolveRole(u User) Role {
	for _, p := range rolePrecedence {
		if _, ok := u.Badges[p.badge]; ok {
			return p.role
		}
	}
	return RoleViewer
}

func roleAllowed(role Role, allowed []Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
