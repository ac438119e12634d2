package extract

import "testing"

func TestParseLocator(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		knownAuthor string
		want        ParsedLocator
	}{
		{
			name: "standard pattern without hint",
			raw:  "A - B (1999).pdf",
			want: ParsedLocator{Author: "A", Title: "B", Year: "1999", Extension: "pdf"},
		},
		{
			name:        "hint matches right side, sides swap",
			raw:         "A - B (1999).pdf",
			knownAuthor: "B",
			want:        ParsedLocator{Author: "B", Title: "A", Year: "1999", Extension: "pdf"},
		},
		{
			name:        "hint matches left side, no swap",
			raw:         "A - B (1999).pdf",
			knownAuthor: "A",
			want:        ParsedLocator{Author: "A", Title: "B", Year: "1999", Extension: "pdf"},
		},
		{
			name: "underscores normalized to spaces",
			raw:  "Brandon_Sanderson_-_Warbreaker_(2009).epub",
			want: ParsedLocator{Author: "Brandon Sanderson", Title: "Warbreaker", Year: "2009", Extension: "epub"},
		},
		{
			name: "whitespace runs collapsed",
			raw:  "Ursula  K.  Le Guin -  The Dispossessed (1974).MOBI",
			want: ParsedLocator{Author: "Ursula K. Le Guin", Title: "The Dispossessed", Year: "1974", Extension: "mobi"},
		},
		{
			name: "dash split fallback without year",
			raw:  "Herbert - Dune Messiah.pdf",
			want: ParsedLocator{Author: "Herbert", Title: "Dune Messiah", Extension: "pdf"},
		},
		{
			name: "dash split keeps remainder as title",
			raw:  "Tolkien - The Lord of the Rings - Appendices.epub",
			want: ParsedLocator{Author: "Tolkien", Title: "The Lord of the Rings - Appendices", Extension: "epub"},
		},
		{
			name: "no dash, whole string is title",
			raw:  "Warbreaker.pdf",
			want: ParsedLocator{Title: "Warbreaker", Extension: "pdf"},
		},
		{
			name: "no extension",
			raw:  "Some Title",
			want: ParsedLocator{Title: "Some Title"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLocator(tt.raw, tt.knownAuthor)
			if got != tt.want {
				t.Errorf("ParseLocator(%q, %q) = %+v, want %+v", tt.raw, tt.knownAuthor, got, tt.want)
			}
		})
	}
}

func TestParseLocator_ExtensionLowercased(t *testing.T) {
	got := ParseLocator("A - B (1999).PDF", "")
	if got.Extension != "pdf" {
		t.Errorf("expected lowercase extension, got %q", got.Extension)
	}
}
