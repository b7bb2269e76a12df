package scraper

import "testing"

func TestSuggestLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Korean", "koreana"},
		{"  simplified chinese ", "schinese"},
		{"frnch", "french"},
		{"FRENCH", "french"},
		{"germna", "german"},
		{"zzzzzzzzzzzz", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SuggestLanguage(tt.in); got != tt.want {
				t.Fatalf("SuggestLanguage(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLanguageSets(t *testing.T) {
	for _, code := range CoreLanguages {
		if !IsKnownLanguage(code) {
			t.Fatalf("core language %q is not a known code", code)
		}
		if CanonicalName(code) == code {
			t.Fatalf("core language %q has no display name", code)
		}
	}
	if IsCoreLanguage("german") || !IsCoreLanguage("koreana") {
		t.Fatal("core membership is wrong")
	}
}
