// Package ingest writes feed event rows for the aggregator to consume.
// The feed timeline only surfaces what is already in the per-user event log;
// this package is the writer side, scanning the contract universe for
// movement worth surfacing.
package ingest

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/tidemark-app/tidemark/internal/domain"
)

// trendingZScore is the day-over-day movement z-score at or above which a
// contract counts as trending relative to the rest of the universe.
const trendingZScore = 2.0

// ContractScanner lists the active contracts to score.
type ContractScanner interface {
	ScanActiveContracts(ctx context.Context) ([]domain.Contract, error)
}

// EventWriter appends rows to the feed event log.
type EventWriter interface {
	InsertEvents(ctx context.Context, events []domain.FeedEvent) error
}

// UserLister enumerates the users to fan events out to.
type UserLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// TrendingScanJob scans active contracts, classifies probability movement,
// and fans the resulting feed events out to every user. It should be
// scheduled frequently enough that movement events stay fresh relative to
// the feed's unseen horizon.
type TrendingScanJob struct {
	contracts     ContractScanner
	events        EventWriter
	users         UserLister
	moveThreshold float64 // same knob the feed's significance gate uses
	log           zerolog.Logger
}

// NewTrendingScanJob creates a new trending scan job.
func NewTrendingScanJob(
	contracts ContractScanner,
	events EventWriter,
	users UserLister,
	moveThreshold float64,
	log zerolog.Logger,
) *TrendingScanJob {
	return &TrendingScanJob{
		contracts:     contracts,
		events:        events,
		users:         users,
		moveThreshold: moveThreshold,
		log:           log.With().Str("job", "trending_scan").Logger(),
	}
}

// Run executes one scan cycle.
func (j *TrendingScanJob) Run() error {
	ctx := context.Background()

	contracts, err := j.contracts.ScanActiveContracts(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to scan contracts")
		return err
	}

	movers, trending := ClassifyMovement(contracts, j.moveThreshold)
	if len(movers) == 0 && len(trending) == 0 {
		j.log.Debug().Int("contracts", len(contracts)).Msg("No movement worth surfacing")
		return nil
	}

	userIDs, err := j.users.ListIDs(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to list users")
		return err
	}

	batchID := uuid.NewString()
	events := buildEvents(userIDs, movers, trending, batchID)
	if err := j.events.InsertEvents(ctx, events); err != nil {
		j.log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to insert feed events")
		return err
	}

	j.log.Info().
		Str("batch_id", batchID).
		Int("movers", len(movers)).
		Int("trending", len(trending)).
		Int("users", len(userIDs)).
		Int("events", len(events)).
		Msg("Trending scan completed")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *TrendingScanJob) Name() string {
	return "trending_scan"
}

// ClassifyMovement splits contracts into significant movers (day-over-day
// delta beyond the threshold) and trending outliers (movement z-score at or
// above the cutoff relative to the whole universe). A contract qualifying as
// both is reported only as a mover; the probability-changed event carries
// more information than the trending one.
func ClassifyMovement(contracts []domain.Contract, moveThreshold float64) (movers, trending []domain.Contract) {
	if len(contracts) == 0 {
		return nil, nil
	}

	magnitudes := make([]float64, len(contracts))
	for i, contract := range contracts {
		magnitudes[i] = abs(contract.ProbChanges.Day)
	}
	mean, std := stat.MeanStdDev(magnitudes, nil)

	for i, contract := range contracts {
		if contract.Mechanism != domain.MechanismCPMM {
			continue
		}
		if magnitudes[i] > moveThreshold {
			movers = append(movers, contract)
			continue
		}
		if std > 0 && stat.StdScore(magnitudes[i], mean, std) >= trendingZScore && magnitudes[i] > 0 {
			trending = append(trending, contract)
		}
	}
	return movers, trending
}

// buildEvents fans the classified contracts out to every user.
func buildEvents(userIDs []string, movers, trending []domain.Contract, batchID string) []domain.FeedEvent {
	events := make([]domain.FeedEvent, 0, len(userIDs)*(len(movers)+len(trending)))
	for _, userID := range userIDs {
		for i := range movers {
			contract := movers[i]
			events = append(events, domain.FeedEvent{
				UserID:     userID,
				CreatorID:  contract.CreatorID,
				DataType:   domain.DataTypeProbabilityChanged,
				Reason:     domain.ReasonSimilarInterestToUser,
				ContractID: &contract.ID,
				Data: map[string]any{
					"previousProb": contract.Prob - contract.ProbChanges.Day,
					"batchId":      batchID,
				},
			})
		}
		for i := range trending {
			contract := trending[i]
			events = append(events, domain.FeedEvent{
				UserID:     userID,
				CreatorID:  contract.CreatorID,
				DataType:   domain.DataTypeTrendingContract,
				Reason:     domain.ReasonSimilarInterestToUser,
				ContractID: &contract.ID,
				Data: map[string]any{
					"batchId": batchID,
				},
			})
		}
	}
	return events
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
