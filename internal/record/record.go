package record

import (
	"fmt"
	mathrand "math/rand"
	"time"

	"recordbase.org/internal/ids"
)

// TimestampFormat is the fixed textual form of every outgoing timestamp.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// CategoryBillOfLading gets a human-readable document number injected at
// creation time. This is a domain side effect local to the one category;
// no other category is affected.
const CategoryBillOfLading = "bl"

// Record is the fixed envelope around a schema-less payload. Only ID,
// CreatedAt, LastChangedAt and the payload are ever shown to clients.
type Record struct {
	Row           string // internal storage id
	Tenant        string
	Category      string
	ID            int64 // public id
	OwnerID       int64 // 0 for anonymous creation
	CreatedAt     time.Time
	LastChangedAt time.Time
	Payload       map[string]any
}

// protectedFields are envelope keys clients can never set through a create
// payload or an update patch; the store recomputes or preserves them.
var protectedFields = map[string]struct{}{
	"id":              {},
	"_row":            {},
	"application_key": {},
	"category":        {},
	"owner_id":        {},
	"type":            {},
	"created_at":      {},
	"last_changed_at": {},
}

// SanitizePayload returns a copy of the client document with protected
// envelope fields silently dropped.
func SanitizePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if _, protected := protectedFields[k]; protected {
			continue
		}
		out[k] = v
	}
	return out
}

// New assembles a fresh record envelope around a sanitized payload,
// assigning identifiers, timestamps and category defaults. Both store
// implementations create records through this one path.
func New(tenant, category string, ownerID int64, payload map[string]any) Record {
	now := time.Now().UTC()
	clean := SanitizePayload(payload)
	applyCategoryDefaults(category, clean, now)
	return Record{
		Row:           ids.New(),
		Tenant:        tenant,
		Category:      category,
		ID:            ids.NewPublicID(),
		OwnerID:       ownerID,
		CreatedAt:     now,
		LastChangedAt: now,
		Payload:       clean,
	}
}

// applyCategoryDefaults injects per-category server-set payload fields.
func applyCategoryDefaults(category string, payload map[string]any, now time.Time) {
	if category != CategoryBillOfLading {
		return
	}
	if _, exists := payload["bl_number"]; exists {
		return
	}
	payload["bl_number"] = DocNumber(now)
}

// DocNumber derives a human-readable bill-of-lading number from a creation
// timestamp plus a two-digit random suffix.
func DocNumber(now time.Time) string {
	return fmt.Sprintf("%s%02d", now.Format("20060102150405"), mathrand.Intn(100))
}

// Merge applies a sanitized patch over the record's payload and touches
// LastChangedAt. Identifiers, owner and creation time are untouchable.
func (r *Record) Merge(patch map[string]any) {
	clean := SanitizePayload(patch)
	if r.Payload == nil {
		r.Payload = make(map[string]any, len(clean))
	}
	for k, v := range clean {
		r.Payload[k] = v
	}
	r.LastChangedAt = time.Now().UTC()
}

// Public projects the record into its outgoing shape: the payload plus the
// public id and lifecycle timestamps. Storage internals, tenant, category
// and owner never appear. The same document is what queries evaluate
// against, so what a client can see is exactly what a client can filter on.
func (r Record) Public() map[string]any {
	out := make(map[string]any, len(r.Payload)+3)
	for k, v := range r.Payload {
		out[k] = v
	}
	out["id"] = r.ID
	out["created_at"] = r.CreatedAt.UTC().Format(TimestampFormat)
	out["last_changed_at"] = r.LastChangedAt.UTC().Format(TimestampFormat)
	return out
}
