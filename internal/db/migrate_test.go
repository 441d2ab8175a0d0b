package db

import "testing"

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@h:5432/d?sslmode=disable":   "pgx5://u:p@h:5432/d?sslmode=disable",
		"postgresql://u:p@h:5432/d?sslmode=disable": "pgx5://u:p@h:5432/d?sslmode=disable",
		"pgx5://already":                            "pgx5://already",
	}

	for in, want := range tests {
		if got := MigrateURL(in); got != want {
			t.Fatalf("MigrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}
