package reader_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houseofcat/rabbitreader/broker/brokertest"
	"github.com/houseofcat/rabbitreader/finder"
	"github.com/houseofcat/rabbitreader/models"
	"github.com/houseofcat/rabbitreader/reader"
	"github.com/houseofcat/rabbitreader/state"
)

func readAll(t *testing.T, r *reader.Reader, dialer *brokertest.FakeDialer, processed, failed int) {

	for i := 0; i < processed+failed; i++ {
		dialer.Publish([]byte(fmt.Sprintf(`{"id":%d}`, i)))
	}

	for i := 0; i < processed+failed; i++ {
		record, err := r.GetNextRecord(context.Background())
		require.NoError(t, err)
		assert.Equal(t, record, r.CurrentRecord())

		if i < processed {
			require.NoError(t, r.MarkLastRecordProcessed())
			assert.Equal(t, record, r.LastProcessedRecord())
		} else {
			require.NoError(t, r.MarkLastRecordFailed())
		}
		assert.Nil(t, r.CurrentRecord())
	}
}

func TestLedgerCounts(t *testing.T) {
	defer leaktest.Check(t)()

	r, dialer := newReader(t, testConfig(), nil)
	readAll(t, r, dialer, 3, 2)

	processed, err := r.ProcessedCount()
	require.NoError(t, err)
	failed, err := r.FailedCount()
	require.NoError(t, err)

	assert.Equal(t, int64(3), processed)
	assert.Equal(t, int64(2), failed)
	assert.Equal(t, int64(5), r.SessionCount())
	assert.Equal(t, models.Record{"id": float64(2)}, r.LastProcessedRecord())
}

func TestEarlyAcknowledgement(t *testing.T) {
	defer leaktest.Check(t)()

	r, dialer := newReader(t, testConfig(), nil)

	dialer.Publish([]byte(`{"id":1}`))
	_, err := r.GetNextRecord(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uint64{1}, dialer.Acker.Acks())

	require.NoError(t, r.MarkLastRecordFailed())

	nacks, _ := dialer.Acker.Nacks()
	assert.Empty(t, nacks)
	assert.Equal(t, []uint64{1}, dialer.Acker.Acks())
}

func TestStrictAcknowledgement(t *testing.T) {
	defer leaktest.Check(t)()

	config := testConfig()
	config.AckMode = models.AckOnProcessed
	r, dialer := newReader(t, config, nil)

	dialer.Publish([]byte(`{"id":1}`))
	dialer.Publish([]byte(`{"id":2}`))
	dialer.Publish([]byte(`not json`))

	_, err := r.GetNextRecord(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dialer.Acker.Acks())

	require.NoError(t, r.MarkLastRecordProcessed())
	assert.Equal(t, []uint64{1}, dialer.Acker.Acks())

	_, err = r.GetNextRecord(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.MarkLastRecordFailed())

	_, err = r.GetNextRecord(context.Background())
	assert.True(t, errors.Is(err, models.ErrDecode))

	nacks, requeue := dialer.Acker.Nacks()
	assert.Equal(t, []uint64{2, 3}, nacks)
	assert.Equal(t, []bool{false, false}, requeue)
	assert.Equal(t, []uint64{1}, dialer.Acker.Acks())
}

func TestAcknowledgementFailureIsNotFatal(t *testing.T) {
	defer leaktest.Check(t)()

	r, dialer := newReader(t, testConfig(), nil)
	dialer.Acker.FailWith(errors.New("channel/connection is not open"))

	dialer.Publish([]byte(`{"id":1}`))
	record, err := r.GetNextRecord(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(1), record["id"])
}

func TestSourceLifecycle(t *testing.T) {
	defer leaktest.Check(t)()

	r, dialer := newReader(t, testConfig(), nil)
	sources := finder.NewBrokerFinder("")

	source, found, err := sources.FindNextSource(context.Background())
	require.NoError(t, err)
	require.True(t, found)

	require.True(t, r.CanReadSource(context.Background(), source))
	require.NoError(t, r.InitialiseWithSource(source))

	current, err := r.CurrentFile()
	require.NoError(t, err)
	assert.Equal(t, finder.DefaultLabel, current)

	readAll(t, r, dialer, 1, 0)

	require.NoError(t, r.MarkSourceProcessed(source))
	current, err = r.CurrentFile()
	require.NoError(t, err)
	assert.Equal(t, "", current)

	require.NoError(t, r.InitialiseWithSource(source))
	require.NoError(t, r.MarkSourceFailed(source))
	current, err = r.CurrentFile()
	require.NoError(t, err)
	assert.Equal(t, "", current)
}

func TestResetState(t *testing.T) {
	defer leaktest.Check(t)()

	r, dialer := newReader(t, testConfig(), nil)

	require.NoError(t, r.InitialiseWithSource("queue"))
	readAll(t, r, dialer, 2, 1)

	require.NoError(t, r.ResetState())

	processed, err := r.ProcessedCount()
	require.NoError(t, err)
	failed, err := r.FailedCount()
	require.NoError(t, err)
	current, err := r.CurrentFile()
	require.NoError(t, err)

	assert.Zero(t, processed)
	assert.Zero(t, failed)
	assert.Equal(t, "", current)
	assert.Zero(t, r.SessionCount())
	assert.Nil(t, r.LastProcessedRecord())
}

func TestCountersSharedAcrossReaders(t *testing.T) {
	defer leaktest.Check(t)()

	store := state.NewMemoryStore()

	first, firstDialer := newReader(t, testConfig(), store)
	readAll(t, first, firstDialer, 2, 0)

	second, secondDialer := newReader(t, testConfig(), store)
	readAll(t, second, secondDialer, 1, 1)

	processed, err := second.ProcessedCount()
	require.NoError(t, err)
	failed, err := second.FailedCount()
	require.NoError(t, err)

	assert.Equal(t, int64(3), processed)
	assert.Equal(t, int64(1), failed)
	assert.Equal(t, int64(2), second.SessionCount())
}

func TestCountersSurviveRestart(t *testing.T) {
	defer leaktest.Check(t)()

	path := filepath.Join(t.TempDir(), "state.db")

	store, err := state.OpenBoltStore(&state.BoltOptions{Path: path})
	require.NoError(t, err)

	r, dialer := newReader(t, testConfig(), store)
	readAll(t, r, dialer, 2, 1)
	require.NoError(t, r.Close())
	require.NoError(t, store.Close())

	reopened, err := state.OpenBoltStore(&state.BoltOptions{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	r, _ = newReader(t, testConfig(), reopened)

	processed, err := r.ProcessedCount()
	require.NoError(t, err)
	failed, err := r.FailedCount()
	require.NoError(t, err)

	assert.Equal(t, int64(2), processed)
	assert.Equal(t, int64(1), failed)
}
