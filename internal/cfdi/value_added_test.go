package cfdi

import "testing"

func TestValueAddedRecompute(t *testing.T) {
	line := &InvoiceLine{}

	line.SetPriceSubtotal(dec("1500"))
	if !line.ValueAdded.Equal(dec("1500")) {
		t.Errorf("ValueAdded = %s, want 1500", line.ValueAdded)
	}

	line.SetRawMaterial(dec("600"))
	if !line.ValueAdded.Equal(dec("900")) {
		t.Errorf("ValueAdded = %s, want 900", line.ValueAdded)
	}

	// Either input change triggers the recompute.
	line.SetPriceSubtotal(dec("2000"))
	if !line.ValueAdded.Equal(dec("1400")) {
		t.Errorf("ValueAdded = %s, want 1400", line.ValueAdded)
	}

	line.SetRawMaterial(dec("2500"))
	if !line.ValueAdded.Equal(dec("-500")) {
		t.Errorf("ValueAdded = %s, want -500", line.ValueAdded)
	}
}

func TestSanitizeCFDIString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		size int
		want string
	}{
		{"pipe becomes space", "Producto|ABC", 100, "Producto ABC"},
		{"trims whitespace", "  Tornillo 3/4  ", 100, "Tornillo 3/4"},
		{"cuts to size", "abcdefghij", 4, "abcd"},
		{"empty stays empty", "", 100, ""},
		{"zero size keeps all", "abc", 0, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeCFDIString(tt.in, tt.size); got != tt.want {
				t.Errorf("SanitizeCFDIString(%q, %d) = %q, want %q", tt.in, tt.size, got, tt.want)
			}
		})
	}
}
