package processor

import "testing"

func TestMatchEndpoint(t *testing.T) {
	tests := []struct {
		pattern, endpoint string
		want              bool
	}{
		{"serp/*", "serp/organic/task_get", true},
		{"serp/*", "images/task_get", false},
		{"*/task_get", "serp/organic/task_get", true},
		{"*/task_get", "serp/organic/task_post", false},
		{"*organic*", "serp/organic/task_get", true},
		{"serp/organic/task_get", "serp/organic/task_get", true},
		{"serp/organic/task_get", "serp/organic/task_post", false},
		{"*", "anything", true},
		{"", "anything", false},
		// Middle-wildcard patterns, the shape processor/service.go actually
		// wires serpprocessor/imageprocessor with.
		{"serp/*/organic/task_get", "serp/google/organic/task_get", true},
		{"serp/*/organic/task_get", "serp/bing/organic/task_get", true},
		{"serp/*/organic/task_get", "serp/google/images/task_get", false},
		{"serp/*/images/task_get", "serp/google/images/task_get", true},
		{"serp/*/images/task_get", "serp/google/organic/task_get", false},
	}
	for _, tt := range tests {
		if got := matchEndpoint(tt.pattern, tt.endpoint); got != tt.want {
			t.Errorf("matchEndpoint(%q, %q) = %v, want %v", tt.pattern, tt.endpoint, got, tt.want)
		}
	}
}

func TestLikePattern(t *testing.T) {
	if got := likePattern("serp/*"); got != "serp/%" {
		t.Errorf("likePattern = %q, want serp/%%", got)
	}
}
