package serpprocessor

import "testing"

const sampleResponse = `{
	"tasks": [
		{
			"data": {"keyword": "running shoes", "location_code": 2840, "language_code": "en", "device": "desktop"},
			"result": [
				{
					"items": [
						{"type": "organic", "rank_absolute": 1, "domain": "example.com", "title": "Shoes", "url": "https://example.com/shoes"},
						{"type": "people_also_ask", "items": [
							{"type": "organic", "rank_absolute": 2, "domain": "nested.com", "title": "Nested", "url": "https://nested.com"}
						]}
					]
				}
			]
		}
	]
}`

func TestExtractItemsFindsOrganicResults(t *testing.T) {
	items, err := extractItems([]byte(sampleResponse), false)
	if err != nil {
		t.Fatalf("extractItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2 (top-level + nested)", len(items))
	}
	if items[0].Keyword != "running shoes" || items[0].LocationCode != 2840 {
		t.Fatalf("item[0] composite fields = %+v", items[0])
	}
}

func TestExtractItemsSkipsNestedWhenPolicySet(t *testing.T) {
	items, err := extractItems([]byte(sampleResponse), true)
	if err != nil {
		t.Fatalf("extractItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1 when skipNestedItems=true", len(items))
	}
}

func TestExtractItemsRejectsMissingTasks(t *testing.T) {
	_, err := extractItems([]byte(`{"tasks": []}`), false)
	if err == nil {
		t.Fatal("expected an error for an empty tasks array")
	}
}

func TestExtractItemsRejectsMalformedJSON(t *testing.T) {
	_, err := extractItems([]byte(`not json`), false)
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
