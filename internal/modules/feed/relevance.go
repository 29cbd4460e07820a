package feed

import (
	"math"
	"time"

	"github.com/tidemark-app/tidemark/internal/domain"
)

// ignoredCommentContent lists content-node types that carry no substance on
// their own. A comment whose content consists solely of these is noise in
// the feed (pure reactions, embeds, mention chains).
var ignoredCommentContent = map[string]bool{
	"mention":      true,
	"iframe":       true,
	"image":        true,
	"linkPreview":  true,
	"reactionOnly": true,
}

// ShouldIgnoreCommentsOnContract reports whether comment-type events attached
// to this contract should be suppressed. Once a market is resolved or past
// its close time, further discussion is not feed-worthy; only movement or
// trending events may still surface it.
func ShouldIgnoreCommentsOnContract(contract *domain.Contract, now time.Time) bool {
	return contract.IsResolved || contract.Closed(now)
}

// Movement is the outcome of the probability-significance test for one
// event/contract pair.
type Movement struct {
	// ProbChange is the rounded percentage-point delta when the movement is
	// significant, nil otherwise. It is display data for every data type and
	// the admission criterion only for probability-changed events.
	ProbChange *int
	// Ignore is set when the event must be dropped from the feed.
	Ignore bool
}

// MarketMovement computes the probability-movement significance of an event.
//
// The delta comes from a payload-supplied previousProb snapshot when present,
// falling back to the market's day-over-day rolling delta. A movement
// qualifies only if the market uses the continuous mechanism, is at least a
// day old, is not a young market drifting off an uninformative ~50% prior,
// moved more than the threshold, and is not resolved. Only the
// probability-changed data type is gated on the result; every other type
// receives the delta purely for display.
func MarketMovement(contract *domain.Contract, dataType domain.FeedDataType, data map[string]any, now time.Time, threshold float64) Movement {
	previousProb, hasPreviousProb := floatField(data, "previousProb")

	aboutFifty := previousProb > 0.48 && previousProb < 0.52
	if !hasPreviousProb {
		aboutFifty = true // absent snapshot is treated as the uninformative prior
	}

	var delta float64
	if contract.Mechanism == domain.MechanismCPMM && hasPreviousProb {
		delta = contract.Prob - previousProb
	} else {
		delta = contract.ProbChanges.Day
	}

	nowMs := now.UnixMilli()
	dayMs := int64(24 * time.Hour / time.Millisecond)

	significant := contract.Mechanism == domain.MechanismCPMM &&
		contract.CreatedTime < nowMs-dayMs &&
		// a market made within the past 2 days that just moved off ~50% is
		// normal post-launch drift, not signal
		!(contract.CreatedTime > nowMs-2*dayMs && aboutFifty) &&
		math.Abs(delta) > threshold &&
		!contract.IsResolved

	var probChange *int
	if significant {
		points := int(math.Round(delta * 100))
		probChange = &points
	}

	showChange := probChange != nil && dataType.HighSignal()
	if !showChange && dataType == domain.DataTypeProbabilityChanged {
		return Movement{ProbChange: probChange, Ignore: true}
	}
	return Movement{ProbChange: probChange, Ignore: false}
}

// IsNoiseComment reports whether the comment's rendered content consists
// solely of ignored content-node types (or is empty), making it
// non-substantive for the feed.
func IsNoiseComment(comment *domain.Comment) bool {
	if len(comment.Content) == 0 {
		return true
	}
	for _, node := range comment.Content {
		if !ignoredCommentContent[node.Type] {
			return false
		}
	}
	return true
}

// FilterContracts drops contracts the viewer has blocked, resolved
// contracts, and contracts the viewer marked as uninteresting.
func FilterContracts(contracts []domain.Contract, viewer *domain.PrivateUser, disinterested map[string]bool) []domain.Contract {
	kept := make([]domain.Contract, 0, len(contracts))
	for _, contract := range contracts {
		if viewer.HasBlockedContract(contract.ID) || viewer.HasBlockedUser(contract.CreatorID) {
			continue
		}
		if contract.IsResolved || disinterested[contract.ID] {
			continue
		}
		kept = append(kept, contract)
	}
	return kept
}

// FilterComments drops comments from blocked authors, hidden comments, and
// comments whose threads the viewer already opened.
func FilterComments(comments []domain.Comment, viewer *domain.PrivateUser, seen map[string]bool) []domain.Comment {
	kept := make([]domain.Comment, 0, len(comments))
	for _, comment := range comments {
		if viewer.HasBlockedUser(comment.UserID) || comment.Hidden || seen[comment.ID] {
			continue
		}
		kept = append(kept, comment)
	}
	return kept
}

func floatField(data map[string]any, key string) (float64, bool) {
	if data == nil {
		return 0, false
	}
	switch v := data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
