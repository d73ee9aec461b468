package domain

import "strings"

const permissionWildcard = "*"

// Permission is a (resource, action) pair; either slot may be "*".
type Permission struct {
	Resource string
	Action   string
}

// PermissionSettingsUpdate guards messaging settings mutations.
var PermissionSettingsUpdate = Permission{Resource: "messaging-settings", Action: "update"}

// ParsePermission parses "resource:action". A bare resource means every action.
func ParsePermission(raw string) Permission {
	raw = strings.TrimSpace(raw)
	resource, action, found := strings.Cut(raw, ":")
	if !found {
		action = permissionWildcard
	}
	return Permission{Resource: resource, Action: action}
}

func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// Grants reports whether the granted permission p covers the required one.
func (p Permission) Grants(required Permission) bool {
	return slotMatches(p.Resource, required.Resource) && slotMatches(p.Action, required.Action)
}

func slotMatches(granted, required string) bool {
	return granted == permissionWildcard || strings.EqualFold(granted, required)
}

// HasPermission reports whether any of the granted strings covers required.
func HasPermission(granted []string, required Permission) bool {
	for _, g := range granted {
		if g == "" {
			continue
		}
		if ParsePermission(g).Grants(required) {
			return true
		}
	}
	return false
}
