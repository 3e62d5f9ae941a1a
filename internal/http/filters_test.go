package httpserver

import (
	"errors"
	"net/url"
	"testing"

	"github.com/Clark-Hu/store-ratings/internal/domain"
)

func TestBuildUserFilters(t *testing.T) {
	values, _ := url.ParseQuery("name= Ada &email=example&address=Main&role=store_owner&sort=email&order=DESC&limit=150&offset=10")

	filters, err := buildUserFilters(values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filters.Name == nil || *filters.Name != "Ada" {
		t.Fatalf("name not trimmed: %+v", filters.Name)
	}
	if filters.Email == nil || *filters.Email != "example" {
		t.Fatalf("email parse failed")
	}
	if filters.Address == nil || *filters.Address != "Main" {
		t.Fatalf("address parse failed")
	}
	if filters.Role == nil || *filters.Role != domain.RoleStoreOwner {
		t.Fatalf("role parse failed: %+v", filters.Role)
	}
	if filters.Sort.Field != "email" || !filters.Sort.Desc {
		t.Fatalf("sort parse failed: %+v", filters.Sort)
	}
	if filters.Page.Limit != 150 || filters.Page.Offset != 10 {
		t.Fatalf("page parse failed: %+v", filters.Page)
	}
	if got := filters.Page.Normalized().Limit; got != 100 {
		t.Fatalf("normalized limit = %d, want 100", got)
	}
}

func TestBuildUserFilters_Invalid(t *testing.T) {
	values, _ := url.ParseQuery("role=superuser&sort=password_hash&order=sideways&limit=-1&offset=x")

	_, err := buildUserFilters(values)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"role", "sort", "order", "limit", "offset"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("missing %s in %+v", field, verr.Fields)
		}
	}
}

func TestBuildStoreFilters(t *testing.T) {
	values, _ := url.ParseQuery("name=bake&address=  &active=false&sort=average_rating&order=desc")

	filters, err := buildStoreFilters(values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filters.Name == nil || *filters.Name != "bake" {
		t.Fatalf("name parse failed: %+v", filters.Name)
	}
	if filters.Address != nil {
		t.Fatalf("blank address should be ignored, got %q", *filters.Address)
	}
	if filters.Active == nil || *filters.Active {
		t.Fatalf("active parse failed: %+v", filters.Active)
	}
	if filters.Sort.Field != "average_rating" || !filters.Sort.Desc {
		t.Fatalf("sort parse failed: %+v", filters.Sort)
	}
}

func TestBuildStoreFilters_InvalidActive(t *testing.T) {
	values, _ := url.ParseQuery("active=maybe")
	if _, err := buildStoreFilters(values); err == nil {
		t.Fatalf("expected error for invalid active flag")
	}
}

func TestBuildStoreFilters_OwnerID(t *testing.T) {
	values, _ := url.ParseQuery("ownerId=not-a-uuid")
	if _, err := buildStoreFilters(values); err == nil {
		t.Fatalf("expected error for invalid owner id")
	}

	id := "6f1c2a8e-3b4d-4c5e-9f60-718293a4b5c6"
	values, _ = url.ParseQuery("ownerId=" + id)
	filters, err := buildStoreFilters(values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filters.OwnerID == nil || *filters.OwnerID != id {
		t.Fatalf("owner id parse failed: %+v", filters.OwnerID)
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"Bearer abc.def ", "abc.def", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		token, ok := bearerToken(c.header)
		if token != c.token || ok != c.ok {
			t.Fatalf("bearerToken(%q) = %q, %v; want %q, %v", c.header, token, ok, c.token, c.ok)
		}
	}
}
