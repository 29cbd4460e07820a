package feed

import "github.com/tidemark-app/tidemark/internal/domain"

// reasonDescriptions maps each surfacing reason to the short human-readable
// explanation shown on the timeline card.
var reasonDescriptions = map[domain.FeedReason]string{
	domain.ReasonFollowedContract:       "questions you follow",
	domain.ReasonLikedContract:          "questions you liked",
	domain.ReasonViewedContract:         "questions you viewed",
	domain.ReasonContractInGroup:        "topics you follow",
	domain.ReasonSimilarInterestToUser:  "your interests",
	domain.ReasonSimilarInterestToLabel: "questions similar to ones you engaged with",
	domain.ReasonFollowedUser:           "creators you follow",
}

// dataTypePrefixes maps each data type to the phrase prefixed to the reason.
var dataTypePrefixes = map[domain.FeedDataType]string{
	domain.DataTypeNewContract:              "New question from",
	domain.DataTypeNewComment:               "Comment on a question from",
	domain.DataTypePopularComment:           "Popular comment on a question from",
	domain.DataTypeNewsWithRelatedContracts: "News related to",
	domain.DataTypeProbabilityChanged:       "Market movement on",
	domain.DataTypeTrendingContract:         "Trending question from",
}

// Explanation builds the reason description for a timeline item.
func Explanation(dataType domain.FeedDataType, reason domain.FeedReason) string {
	prefix, ok := dataTypePrefixes[dataType]
	if !ok {
		return ""
	}
	description, ok := reasonDescriptions[reason]
	if !ok {
		return prefix
	}
	return prefix + " " + description
}
