package env

import "testing"

func TestIntAllowZero(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback int
		want     int
	}{
		{"unset uses fallback", "", 10, 10},
		{"zero is honored", "0", 10, 0},
		{"positive honored", "25", 10, 25},
		{"negative falls back", "-1", 10, 10},
		{"garbage falls back", "ten", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_INT_ALLOW_ZERO", tt.value)
			}
			if got := IntAllowZero("TEST_INT_ALLOW_ZERO", tt.fallback); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCSV(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback []string
		want     []string
	}{
		{"unset uses fallback", "", []string{"a"}, []string{"a"}},
		{"splits and trims", " image/png , application/pdf ", nil, []string{"image/png", "application/pdf"}},
		{"drops duplicates", "a,b,a", nil, []string{"a", "b"}},
		{"all blank falls back", " , ,", []string{"x"}, []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_CSV", tt.value)
			}
			got := CSV("TEST_CSV", tt.fallback)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("item %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
