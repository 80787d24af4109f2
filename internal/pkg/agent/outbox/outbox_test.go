package outbox

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/esDesler/smart-home-inventory-system/pkg/types"
	"github.com/matryer/is"
)

func testReading(sensorID, state string) types.Reading {
	v := 42.0
	return types.Reading{
		SensorID:        sensorID,
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
		RawValue:        &v,
		NormalizedValue: &v,
		State:           state,
	}
}

func testOutbox(t *testing.T, maxRows, maxAgeSeconds int) *Outbox {
	t.Helper()

	o, err := New(filepath.Join(t.TempDir(), "queue.db"), maxRows, maxAgeSeconds)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { o.Close() })

	return o
}

func TestEnqueueAssignsIncreasingSequenceIDs(t *testing.T) {
	is := is.New(t)
	o := testOutbox(t, 0, 0)

	var last uint64
	for i := 0; i < 5; i++ {
		seq, err := o.Enqueue(testReading("bin-01", types.StateOK))
		is.NoErr(err)
		is.True(seq > last)
		last = seq
	}
}

func TestSequenceIDsNotReusedAfterAck(t *testing.T) {
	is := is.New(t)
	o := testOutbox(t, 0, 0)

	seq1, err := o.Enqueue(testReading("bin-01", types.StateOK))
	is.NoErr(err)

	is.NoErr(o.AckUpTo(seq1))

	seq2, err := o.Enqueue(testReading("bin-01", types.StateLow))
	is.NoErr(err)
	is.True(seq2 > seq1)
}

func TestGetBatchOrderAndLimit(t *testing.T) {
	is := is.New(t)
	o := testOutbox(t, 0, 0)

	for i := 0; i < 10; i++ {
		_, err := o.Enqueue(testReading(fmt.Sprintf("bin-%02d", i), types.StateOK))
		is.NoErr(err)
	}

	batch, err := o.GetBatch(4)
	is.NoErr(err)
	is.Equal(4, len(batch))

	for i := 1; i < len(batch); i++ {
		is.True(batch[i].LocalSeq > batch[i-1].LocalSeq)
	}

	// reads do not remove rows
	count, err := o.PendingCount()
	is.NoErr(err)
	is.Equal(int64(10), count)
}

func TestAckUpToIsIdempotent(t *testing.T) {
	is := is.New(t)
	o := testOutbox(t, 0, 0)

	var seqs []uint64
	for i := 0; i < 5; i++ {
		seq, err := o.Enqueue(testReading("bin-01", types.StateOK))
		is.NoErr(err)
		seqs = append(seqs, seq)
	}

	is.NoErr(o.AckUpTo(seqs[2]))

	count, err := o.PendingCount()
	is.NoErr(err)
	is.Equal(int64(2), count)

	is.NoErr(o.AckUpTo(seqs[2]))

	count, err = o.PendingCount()
	is.NoErr(err)
	is.Equal(int64(2), count)

	batch, err := o.GetBatch(10)
	is.NoErr(err)
	is.Equal(seqs[3], batch[0].LocalSeq)
}

func TestMaxLocalSeq(t *testing.T) {
	is := is.New(t)
	o := testOutbox(t, 0, 0)

	max, err := o.MaxLocalSeq()
	is.NoErr(err)
	is.Equal((*uint64)(nil), max)

	seq, err := o.Enqueue(testReading("bin-01", types.StateOK))
	is.NoErr(err)

	max, err = o.MaxLocalSeq()
	is.NoErr(err)
	is.Equal(seq, *max)
}

func TestTrimByRowCountDropsOldest(t *testing.T) {
	is := is.New(t)
	o := testOutbox(t, 3, 0)

	var seqs []uint64
	for i := 0; i < 6; i++ {
		seq, err := o.Enqueue(testReading("bin-01", types.StateOK))
		is.NoErr(err)
		seqs = append(seqs, seq)
	}

	count, err := o.PendingCount()
	is.NoErr(err)
	is.Equal(int64(3), count)

	batch, err := o.GetBatch(10)
	is.NoErr(err)
	is.Equal(seqs[3], batch[0].LocalSeq)
}

func TestTrimByAgeDropsExpiredRows(t *testing.T) {
	is := is.New(t)
	o := testOutbox(t, 0, 60)

	old := testReading("bin-01", types.StateOK)
	old.Timestamp = time.Now().UTC().Add(-2 * time.Minute).Format(time.RFC3339Nano)
	_, err := o.Enqueue(old)
	is.NoErr(err)

	// the next enqueue triggers the trim that removes the expired row
	_, err = o.Enqueue(testReading("bin-01", types.StateOK))
	is.NoErr(err)

	count, err := o.PendingCount()
	is.NoErr(err)
	is.Equal(int64(1), count)
}

func TestSequenceSurvivesReopen(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "queue.db")

	o, err := New(path, 0, 0)
	is.NoErr(err)

	seq1, err := o.Enqueue(testReading("bin-01", types.StateOK))
	is.NoErr(err)
	is.NoErr(o.AckUpTo(seq1))
	is.NoErr(o.Close())

	o, err = New(path, 0, 0)
	is.NoErr(err)
	defer o.Close()

	seq2, err := o.Enqueue(testReading("bin-01", types.StateOK))
	is.NoErr(err)
	is.True(seq2 > seq1)
}
