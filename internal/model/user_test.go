package model

import "testing"

func TestValidRole(t *testing.T) {
	tests := []struct {
		role     string
		expected bool
	}{
		{RoleAdmin, true},
		{RoleUser, true},
		{"manager", false},
		{"", false},
		{"ADMIN", false},
	}

	for _, tt := range tests {
		if got := ValidRole(tt.role); got != tt.expected {
			t.Errorf("ValidRole(%q) = %v, want %v", tt.role, got, tt.expected)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"", true},
		{"short", true},
		{"1234567", true},
		{"12345678", false},
		{"a-valid-password", false},
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail("  Alice@Example.COM ")
	if err != nil {
		t.Fatalf("NormalizeEmail: %v", err)
	}
	if got != "alice@example.com" {
		t.Errorf("expected lower-cased address, got %q", got)
	}

	for _, bad := range []string{"", "not-an-email", "Alice <alice@example.com>"} {
		if _, err := NormalizeEmail(bad); err == nil {
			t.Errorf("NormalizeEmail(%q): expected error", bad)
		}
	}
}

func TestValidateItemAttributes(t *testing.T) {
	tests := []struct {
		name      string
		size      string
		condition string
		category  string
		points    int
		wantErr   bool
	}{
		{"valid", "M", "Good", "Tops", 50, false},
		{"one size", "One Size", "New", "Accessories", 10, false},
		{"max points", "XL", "Poor", "Other", 500, false},
		{"bad size", "XXXL", "Good", "Tops", 50, true},
		{"bad condition", "M", "Worn", "Tops", 50, true},
		{"bad category", "M", "Good", "Hats", 50, true},
		{"too cheap", "M", "Good", "Tops", 9, true},
		{"too expensive", "M", "Good", "Tops", 501, true},
	}

	for _, tt := range tests {
		err := ValidateItemAttributes(tt.size, tt.condition, tt.category, tt.points)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}
