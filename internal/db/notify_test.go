package db

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate() { c.calls++ }

func TestNextBackoff(t *testing.T) {
	for _, cur := range []time.Duration{time.Second, 10 * time.Second, time.Minute} {
		next := nextBackoff(cur)

		want := cur * 2
		if want > maxBackoff {
			want = maxBackoff
		}

		low := time.Duration(float64(want) * 0.75)
		high := time.Duration(float64(want) * 1.25)
		if next < low || next > high {
			t.Errorf("nextBackoff(%v) = %v, want within [%v, %v]", cur, next, low, high)
		}
	}
}

func TestSynonymListener_HandleInvalidates(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	inv := &countingInvalidator{}
	l := NewSynonymListener(log, nil, inv)

	l.handle(&pgconn.Notification{Channel: SynonymChannel, Payload: `{"op":"INSERT"}`})
	l.handle(&pgconn.Notification{Channel: SynonymChannel, Payload: `{"op":"DELETE"}`})

	if inv.calls != 2 {
		t.Errorf("Invalidate called %d times, want 2", inv.calls)
	}
}

func TestSchemaVersion(t *testing.T) {
	if got := SchemaVersion(); got != 2 {
		t.Errorf("SchemaVersion = %d, want 2", got)
	}
}
