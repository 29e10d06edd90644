package bridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/docbrown/xbdm/internal/console"
	"github.com/docbrown/xbdm/internal/protocol"
	"github.com/docbrown/xbdm/internal/testutil/testlog"
)

func statusNotification(code int, msg string) console.Notification {
	return console.Notification{
		Status: protocol.Status{Code: protocol.StatusCode(code), Message: msg},
	}
}

func TestRingRecordOrder(t *testing.T) {
	testlog.Start(t)
	r := newNotifyRing(8)
	r.record(statusNotification(200, "first"))
	r.record(statusNotification(200, "second"))
	r.record(statusNotification(200, "third"))

	recs := r.Recent(0)
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if recs[i].Message != want {
			t.Fatalf("record %d message %q, want %q", i, recs[i].Message, want)
		}
		if recs[i].Seq != uint64(i+1) {
			t.Fatalf("record %d seq %d, want %d", i, recs[i].Seq, i+1)
		}
		if recs[i].Received.IsZero() {
			t.Fatalf("record %d missing receive time", i)
		}
	}
}

func TestRingTrimsOldest(t *testing.T) {
	testlog.Start(t)
	r := newNotifyRing(3)
	for i := 1; i <= 5; i++ {
		r.record(statusNotification(200, fmt.Sprintf("n%d", i)))
	}

	recs := r.Recent(10)
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Seq != 3 || recs[2].Seq != 5 {
		t.Fatalf("got seqs %d..%d, want 3..5", recs[0].Seq, recs[2].Seq)
	}
	if recs[0].Message != "n3" {
		t.Fatalf("oldest retained %q, want n3", recs[0].Message)
	}
	if r.Total() != 5 {
		t.Fatalf("total %d, want 5", r.Total())
	}
}

func TestRingRecentLimit(t *testing.T) {
	testlog.Start(t)
	r := newNotifyRing(64)
	for i := 1; i <= 30; i++ {
		r.record(statusNotification(200, fmt.Sprintf("n%d", i)))
	}

	recs := r.Recent(0)
	if len(recs) != 20 {
		t.Fatalf("default limit returned %d records, want 20", len(recs))
	}
	if recs[0].Seq != 11 {
		t.Fatalf("default window starts at seq %d, want 11", recs[0].Seq)
	}

	recs = r.Recent(2)
	if len(recs) != 2 || recs[1].Seq != 30 {
		t.Fatalf("limit 2 returned wrong window: %+v", recs)
	}
}

func TestRingRecordsDecodeError(t *testing.T) {
	testlog.Start(t)
	r := newNotifyRing(8)
	r.record(console.Notification{Err: errors.New("bad frame")})

	recs := r.Recent(0)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Error != "bad frame" {
		t.Fatalf("error field %q", recs[0].Error)
	}
	if recs[0].Code != 0 || recs[0].Message != "" {
		t.Fatalf("error record carries status fields: %+v", recs[0])
	}
}

func TestRingMultilineLines(t *testing.T) {
	testlog.Start(t)
	r := newNotifyRing(8)
	n := statusNotification(202, "multiline response follows")
	n.Lines = []string{"modload name=\"xbdm.dll\"", "base=0x10000"}
	r.record(n)

	recs := r.Recent(0)
	if len(recs) != 1 || len(recs[0].Lines) != 2 {
		t.Fatalf("lines not retained: %+v", recs)
	}
	if recs[0].Lines[1] != "base=0x10000" {
		t.Fatalf("line 1 = %q", recs[0].Lines[1])
	}
}
