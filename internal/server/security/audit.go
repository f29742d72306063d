package security

import "github.com/pgElephant/ramd/internal/server/models"

// AuditCapacity is the number of entries the in-memory trail retains.
const AuditCapacity = 10000

// AuditTrail is a fixed-size ring of the most recent audit entries.
// When full, each new entry overwrites the oldest one. It is not safe for
// concurrent use; the Gatekeeper serializes access.
type AuditTrail struct {
	entries []models.AuditEntry
	next    int
	count   int
	total   uint64
}

func NewAuditTrail(capacity int) *AuditTrail {
	return &AuditTrail{entries: make([]models.AuditEntry, capacity)}
}

// Record appends e, overwriting the oldest entry when the ring is full.
func (t *AuditTrail) Record(e models.AuditEntry) {
	if len(t.entries) == 0 {
		return
	}
	t.entries[t.next] = e
	t.next = (t.next + 1) % len(t.entries)
	if t.count < len(t.entries) {
		t.count++
	}
	t.total++
}

// Read returns up to max entries, most recent first.
func (t *AuditTrail) Read(max int) []models.AuditEntry {
	n := min(max, t.count)
	if n <= 0 {
		return nil
	}
	out := make([]models.AuditEntry, n)
	size := len(t.entries)
	for i := 0; i < n; i++ {
		out[i] = t.entries[(t.next-1-i+size)%size]
	}
	return out
}

// Len returns the number of retained entries.
func (t *AuditTrail) Len() int {
	return t.count
}

// Total returns the number of entries ever recorded.
func (t *AuditTrail) Total() uint64 {
	return t.total
}

// Reset drops every retained entry and the running total.
func (t *AuditTrail) Reset() {
	clear(t.entries)
	t.next = 0
	t.count = 0
	t.total = 0
}
