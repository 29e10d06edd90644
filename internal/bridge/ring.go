package bridge

import (
	"sync"
	"time"

	"github.com/docbrown/xbdm/internal/console"
)

// NotificationRecord is one push frame as served over HTTP. Seq is
// assigned at record time and keeps counting across trims, so a client
// polling with a limit can spot the gap when it fell behind.
type NotificationRecord struct {
	Seq      uint64    `json:"seq"`
	Received time.Time `json:"received"`
	Code     int       `json:"code"`
	Message  string    `json:"message"`
	Lines    []string  `json:"lines,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// notifyRing keeps the newest notifications in arrival order, bounded
// by max.
type notifyRing struct {
	mu  sync.Mutex
	buf []NotificationRecord
	max int
	seq uint64
}

func newNotifyRing(max int) *notifyRing {
	if max <= 0 {
		max = 256
	}
	return &notifyRing{max: max}
}

// record converts one session notification and appends it, dropping
// the oldest entry once the ring is full.
func (r *notifyRing) record(n console.Notification) {
	rec := NotificationRecord{Received: time.Now()}
	if n.Err != nil {
		rec.Error = n.Err.Error()
	} else {
		rec.Code = int(n.Status.Code)
		rec.Message = n.Status.Message
		rec.Lines = n.Lines
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rec.Seq = r.seq
	r.buf = append(r.buf, rec)
	if len(r.buf) > r.max {
		copy(r.buf, r.buf[len(r.buf)-r.max:])
		r.buf = r.buf[:r.max]
	}
}

// Recent returns up to limit newest records, oldest first.
func (r *notifyRing) Recent(limit int) []NotificationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	if len(r.buf) <= limit {
		out := make([]NotificationRecord, len(r.buf))
		copy(out, r.buf)
		return out
	}
	out := make([]NotificationRecord, limit)
	copy(out, r.buf[len(r.buf)-limit:])
	return out
}

// Total reports how many notifications were ever recorded, trimmed
// ones included.
func (r *notifyRing) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}
