// Package navigation derives the sidebar entries a role may see.
//
// The result is advisory: it keeps clients from rendering links to screens
// the caller cannot use, while the HTTP layer enforces access on its own.
package navigation

import "github.com/Clark-Hu/store-ratings/internal/domain"

// Item is a single navigation entry.
type Item struct {
	Path  string `json:"to"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

type entry struct {
	item  Item
	roles []domain.Role // nil means every role
}

var entries = []entry{
	{item: Item{Path: "/profile", Label: "Profile", Icon: "user"}},
	{item: Item{Path: "/dashboard", Label: "Dashboard", Icon: "layout-dashboard"}, roles: []domain.Role{domain.RoleAdmin}},
	{item: Item{Path: "/stores", Label: "Stores", Icon: "store"}},
	{item: Item{Path: "/users", Label: "Users", Icon: "users"}, roles: []domain.Role{domain.RoleAdmin}},
	{item: Item{Path: "/store-dashboard", Label: "Store Dashboard", Icon: "store"}, roles: []domain.Role{domain.RoleStoreOwner}},
}

// Items returns the entries visible to role, in display order.
func Items(role domain.Role) []Item {
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if e.visibleTo(role) {
			items = append(items, e.item)
		}
	}
	return items
}

func (e entry) visibleTo(role domain.Role) bool {
	if e.roles == nil {
		return true
	}
	for _, r := range e.roles {
		if r == role {
			return true
		}
	}
	return false
}
