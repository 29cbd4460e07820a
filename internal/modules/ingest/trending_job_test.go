package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-app/tidemark/internal/domain"
)

func cpmm(id string, dayDelta float64) domain.Contract {
	return domain.Contract{
		ID:          id,
		CreatorID:   "creator-" + id,
		Mechanism:   domain.MechanismCPMM,
		Prob:        0.5 + dayDelta,
		ProbChanges: domain.ProbChanges{Day: dayDelta},
	}
}

func TestClassifyMovement_MoversAboveThreshold(t *testing.T) {
	contracts := []domain.Contract{
		cpmm("quiet-1", 0.01),
		cpmm("quiet-2", -0.02),
		cpmm("mover", 0.10),
	}

	movers, trending := ClassifyMovement(contracts, 0.055)

	require.Len(t, movers, 1)
	assert.Equal(t, "mover", movers[0].ID)
	assert.Empty(t, trending)
}

func TestClassifyMovement_MoverNotAlsoTrending(t *testing.T) {
	// The mover is also the statistical outlier; it must be reported once.
	contracts := []domain.Contract{
		cpmm("quiet-1", 0.001),
		cpmm("quiet-2", 0.002),
		cpmm("quiet-3", 0.001),
		cpmm("quiet-4", 0.002),
		cpmm("outlier", 0.20),
	}

	movers, trending := ClassifyMovement(contracts, 0.055)

	require.Len(t, movers, 1)
	assert.Equal(t, "outlier", movers[0].ID)
	assert.Empty(t, trending)
}

func TestClassifyMovement_TrendingOutlierBelowThreshold(t *testing.T) {
	// 0.04 is under the movement threshold but far outside the universe's
	// usual day-over-day delta.
	contracts := []domain.Contract{
		cpmm("quiet-1", 0.001),
		cpmm("quiet-2", 0.002),
		cpmm("quiet-3", 0.001),
		cpmm("quiet-4", 0.002),
		cpmm("quiet-5", 0.001),
		cpmm("quiet-6", 0.002),
		cpmm("hot", 0.04),
	}

	movers, trending := ClassifyMovement(contracts, 0.055)

	assert.Empty(t, movers)
	require.Len(t, trending, 1)
	assert.Equal(t, "hot", trending[0].ID)
}

func TestClassifyMovement_SkipsNonContinuousMechanisms(t *testing.T) {
	multi := cpmm("multi", 0.30)
	multi.Mechanism = "cpmm-multi-1"
	contracts := []domain.Contract{multi, cpmm("quiet", 0.01)}

	movers, trending := ClassifyMovement(contracts, 0.055)

	assert.Empty(t, movers)
	assert.Empty(t, trending)
}

func TestClassifyMovement_EmptyUniverse(t *testing.T) {
	movers, trending := ClassifyMovement(nil, 0.055)
	assert.Empty(t, movers)
	assert.Empty(t, trending)
}

type stubScanner struct {
	contracts []domain.Contract
	err       error
}

func (s *stubScanner) ScanActiveContracts(context.Context) ([]domain.Contract, error) {
	return s.contracts, s.err
}

type stubWriter struct {
	inserted []domain.FeedEvent
	err      error
}

func (s *stubWriter) InsertEvents(_ context.Context, events []domain.FeedEvent) error {
	s.inserted = append(s.inserted, events...)
	return s.err
}

type stubLister struct {
	ids []string
}

func (s *stubLister) ListIDs(context.Context) ([]string, error) {
	return s.ids, nil
}

func TestTrendingScanJob_FansOutToEveryUser(t *testing.T) {
	scanner := &stubScanner{contracts: []domain.Contract{
		cpmm("quiet-1", 0.01),
		cpmm("quiet-2", 0.02),
		cpmm("mover", 0.10),
	}}
	writer := &stubWriter{}
	lister := &stubLister{ids: []string{"user-1", "user-2"}}
	job := NewTrendingScanJob(scanner, writer, lister, 0.055, zerolog.Nop())

	require.NoError(t, job.Run())

	require.Len(t, writer.inserted, 2)
	for _, event := range writer.inserted {
		assert.Equal(t, domain.DataTypeProbabilityChanged, event.DataType)
		require.NotNil(t, event.ContractID)
		assert.Equal(t, "mover", *event.ContractID)
		// previousProb reconstructs the pre-move probability from the delta.
		assert.InDelta(t, 0.5, event.Data["previousProb"].(float64), 1e-9)
		assert.NotEmpty(t, event.Data["batchId"])
	}
	assert.Equal(t, "user-1", writer.inserted[0].UserID)
	assert.Equal(t, "user-2", writer.inserted[1].UserID)
}

func TestTrendingScanJob_NoMovementWritesNothing(t *testing.T) {
	scanner := &stubScanner{contracts: []domain.Contract{
		cpmm("quiet-1", 0.01),
		cpmm("quiet-2", 0.01),
	}}
	writer := &stubWriter{}
	job := NewTrendingScanJob(scanner, writer, &stubLister{ids: []string{"user-1"}}, 0.055, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Empty(t, writer.inserted)
}

func TestTrendingScanJob_ScanFailurePropagates(t *testing.T) {
	scanner := &stubScanner{err: errors.New("throughput exceeded")}
	job := NewTrendingScanJob(scanner, &stubWriter{}, &stubLister{}, 0.055, zerolog.Nop())

	assert.Error(t, job.Run())
}
