package record

import (
	"regexp"
	"testing"
	"time"
)

func TestSanitizePayloadDropsProtected(t *testing.T) {
	payload := map[string]any{
		"title":           "manifest",
		"id":              999,
		"application_key": "stolen",
		"category":        "other",
		"owner_id":        1,
		"created_at":      "1970-01-01",
		"last_changed_at": "1970-01-01",
		"type":            "schema",
		"_row":            "x",
	}
	clean := SanitizePayload(payload)
	if len(clean) != 1 || clean["title"] != "manifest" {
		t.Fatalf("unexpected sanitized payload: %v", clean)
	}
}

func TestNewAssignsEnvelope(t *testing.T) {
	rec := New("app-1", "invoices", 42, map[string]any{"a": 1.0, "id": 5})
	if rec.ID <= 0 {
		t.Fatalf("expected positive public id, got %d", rec.ID)
	}
	if rec.Row == "" {
		t.Fatalf("expected storage row id")
	}
	if rec.OwnerID != 42 || rec.Tenant != "app-1" || rec.Category != "invoices" {
		t.Fatalf("unexpected envelope: %+v", rec)
	}
	if rec.CreatedAt.IsZero() || !rec.CreatedAt.Equal(rec.LastChangedAt) {
		t.Fatalf("unexpected timestamps: %+v", rec)
	}
	if _, ok := rec.Payload["id"]; ok {
		t.Fatalf("client-supplied id survived sanitization")
	}
}

func TestMergeProtectsEnvelope(t *testing.T) {
	rec := New("app-1", "invoices", 42, map[string]any{"a": "old", "b": "keep"})
	created := rec.CreatedAt
	time.Sleep(2 * time.Millisecond)

	rec.Merge(map[string]any{"a": "new", "owner_id": 7, "id": 123, "created_at": "1970-01-01"})

	if rec.Payload["a"] != "new" || rec.Payload["b"] != "keep" {
		t.Fatalf("merge result wrong: %v", rec.Payload)
	}
	if rec.OwnerID != 42 {
		t.Fatalf("owner mutated: %d", rec.OwnerID)
	}
	if !rec.CreatedAt.Equal(created) {
		t.Fatalf("created_at mutated")
	}
	if !rec.LastChangedAt.After(created) {
		t.Fatalf("last_changed_at not touched")
	}
}

func TestPublicShape(t *testing.T) {
	rec := New("app-1", "invoices", 42, map[string]any{"a": 1.0, "b": "x"})
	doc := rec.Public()

	for _, hidden := range []string{"application_key", "category", "owner_id", "_row", "type"} {
		if _, ok := doc[hidden]; ok {
			t.Fatalf("internal field %q leaked: %v", hidden, doc)
		}
	}
	if doc["id"] != rec.ID || doc["a"] != 1.0 || doc["b"] != "x" {
		t.Fatalf("public doc wrong: %v", doc)
	}
	tsPattern := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`)
	for _, field := range []string{"created_at", "last_changed_at"} {
		s, ok := doc[field].(string)
		if !ok || !tsPattern.MatchString(s) {
			t.Fatalf("%s not in fixed format: %v", field, doc[field])
		}
	}
}

func TestBillOfLadingNumber(t *testing.T) {
	rec := New("app-1", CategoryBillOfLading, 0, map[string]any{"consignee": "x"})
	num, ok := rec.Payload["bl_number"].(string)
	if !ok {
		t.Fatalf("bl_number missing: %v", rec.Payload)
	}
	if !regexp.MustCompile(`^\d{14}\d{2}$`).MatchString(num) {
		t.Fatalf("unexpected bl_number: %q", num)
	}

	// A client-supplied number is kept.
	rec = New("app-1", CategoryBillOfLading, 0, map[string]any{"bl_number": "BL-1"})
	if rec.Payload["bl_number"] != "BL-1" {
		t.Fatalf("client bl_number overwritten: %v", rec.Payload)
	}

	// Other categories are untouched.
	rec = New("app-1", "invoices", 0, map[string]any{})
	if _, ok := rec.Payload["bl_number"]; ok {
		t.Fatalf("bl_number injected outside %q", CategoryBillOfLading)
	}
}
