package address

import "testing"

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Land Rover", want: "land-rover"},
		{in: "Range Rover (Sport)", want: "range-rover-sport"},
		{in: "Citroën", want: "citroen"},
		{in: "Škoda Octavia", want: "skoda-octavia"},
		{in: "Mercedes-Benz", want: "mercedes-benz"},
		{in: "  --F-150--  ", want: "f-150"},
		{in: "A & B / C", want: "a-b-c"},
		{in: "", want: ""},
		{in: "!!!", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Slug(tt.in); got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
