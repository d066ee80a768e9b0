package deserializer

import "testing"

func TestAnnotationFilter(t *testing.T) {
	tests := []struct {
		filter string
		name   string
		want   bool
	}{
		{"*", "NS.Rating", true},
		{"", "NS.Rating", false},
		{"NS.*", "NS.Rating", true},
		{"NS.*", "Other.Rating", false},
		{"NS.Rating", "NS.Rating", true},
		{"NS.Rating", "NS.Ratings", false},
		{"*,-NS.*", "NS.Rating", false},
		{"*,-NS.*", "Other.Rating", true},
		{"-NS.*,NS.Rating", "NS.Rating", true},
		{"-NS.*,NS.Rating", "NS.Other", false},
		{"NS.Rating,-NS.Rating", "NS.Rating", false},
		{" NS.* , -NS.Secret ", "NS.Secret", false},
	}
	for _, tt := range tests {
		t.Run(tt.filter+"/"+tt.name, func(t *testing.T) {
			if got := ParseAnnotationFilter(tt.filter).Matches(tt.name); got != tt.want {
				t.Errorf("Matches(%q) with %q = %v, want %v", tt.name, tt.filter, got, tt.want)
			}
		})
	}

	var nilFilter *AnnotationFilter
	if !nilFilter.Matches("NS.Anything") {
		t.Errorf("nil filter Matches() = false, want true")
	}
}
