package cachekey

import "testing"

func TestGenerateDeterministic(t *testing.T) {
	params := map[string]any{"q": "cats", "location": "US"}

	k1, err := Generate("dataforseo", "serp/google/organic", params, "POST", "v3")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	k2, err := Generate("dataforseo", "serp/google/organic", params, "POST", "v3")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if k1 != k2 {
		t.Fatalf("identical inputs produced different keys: %s vs %s", k1, k2)
	}
	if len(k1) != 64 {
		t.Fatalf("key length = %d, want 64", len(k1))
	}
}

func TestGenerateKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"q": "cats", "location": "US", "nested": map[string]any{"x": 1, "y": 2}}
	b := map[string]any{"location": "US", "nested": map[string]any{"y": 2, "x": 1}, "q": "cats"}

	ka, err := Generate("dataforseo", "serp", a, "GET", "v3")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	kb, err := Generate("dataforseo", "serp", b, "GET", "v3")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if ka != kb {
		t.Fatalf("map key reordering changed the cache key: %s vs %s", ka, kb)
	}
}

func TestGenerateArrayOrderMatters(t *testing.T) {
	a := map[string]any{"tags": []any{"a", "b"}}
	b := map[string]any{"tags": []any{"b", "a"}}

	ka, _ := Generate("c", "e", a, "GET", "")
	kb, _ := Generate("c", "e", b, "GET", "")

	if ka == kb {
		t.Fatal("array element reordering must change the cache key")
	}
}

func TestGenerateDistinguishesDimensions(t *testing.T) {
	base, _ := Generate("client", "endpoint", map[string]any{"q": "x"}, "GET", "v1")

	cases := []string{
		mustGen(t, "other-client", "endpoint", map[string]any{"q": "x"}, "GET", "v1"),
		mustGen(t, "client", "other-endpoint", map[string]any{"q": "x"}, "GET", "v1"),
		mustGen(t, "client", "endpoint", map[string]any{"q": "y"}, "GET", "v1"),
		mustGen(t, "client", "endpoint", map[string]any{"q": "x"}, "POST", "v1"),
		mustGen(t, "client", "endpoint", map[string]any{"q": "x"}, "GET", "v2"),
	}

	for _, c := range cases {
		if c == base {
			t.Fatalf("expected distinct key, got collision with base %s", base)
		}
	}
}

func mustGen(t *testing.T, client, endpoint string, params map[string]any, method, version string) string {
	t.Helper()
	k, err := Generate(client, endpoint, params, method, version)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return k
}
