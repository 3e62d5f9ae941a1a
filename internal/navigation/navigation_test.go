package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Clark-Hu/store-ratings/internal/domain"
)

func labels(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Label)
	}
	return out
}

func TestItemsByRole(t *testing.T) {
	tests := []struct {
		role domain.Role
		want []string
	}{
		{domain.RoleAdmin, []string{"Profile", "Dashboard", "Stores", "Users"}},
		{domain.RoleStoreOwner, []string{"Profile", "Stores", "Store Dashboard"}},
		{domain.RoleUser, []string{"Profile", "Stores"}},
		{domain.Role("guest"), []string{"Profile", "Stores"}},
		{domain.Role(""), []string{"Profile", "Stores"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.want, labels(Items(tt.role)))
		})
	}
}

func TestItemsNeverLeakGatedPaths(t *testing.T) {
	for _, it := range Items(domain.RoleUser) {
		assert.NotContains(t, []string{"/dashboard", "/users", "/store-dashboard"}, it.Path)
	}
}

func TestItemsReturnsFreshSlice(t *testing.T) {
	first := Items(domain.RoleAdmin)
	first[0].Label = "mutated"
	assert.Equal(t, "Profile", Items(domain.RoleAdmin)[0].Label)
}
