package domain

// FeedDataType identifies the kind of activity a feed event carries.
// It is a closed enumeration: the relevance filter and the timeline item
// builder switch over it exhaustively, and Valid() rejects anything else
// coming out of the event log.
type FeedDataType string

const (
	DataTypeNewContract              FeedDataType = "new_contract"
	DataTypeNewComment               FeedDataType = "new_comment"
	DataTypePopularComment           FeedDataType = "popular_comment"
	DataTypeNewsWithRelatedContracts FeedDataType = "news_with_related_contracts"
	DataTypeProbabilityChanged       FeedDataType = "contract_probability_changed"
	DataTypeTrendingContract         FeedDataType = "trending_contract"
)

// AllFeedDataTypes lists every valid data type, in no particular order.
var AllFeedDataTypes = []FeedDataType{
	DataTypeNewContract,
	DataTypeNewComment,
	DataTypePopularComment,
	DataTypeNewsWithRelatedContracts,
	DataTypeProbabilityChanged,
	DataTypeTrendingContract,
}

// Valid reports whether t is a known data type.
func (t FeedDataType) Valid() bool {
	switch t {
	case DataTypeNewContract, DataTypeNewComment, DataTypePopularComment,
		DataTypeNewsWithRelatedContracts, DataTypeProbabilityChanged,
		DataTypeTrendingContract:
		return true
	}
	return false
}

// HighSignal reports whether events of this type are prioritized during
// backfill ahead of the generic chronological page.
func (t FeedDataType) HighSignal() bool {
	return t == DataTypeProbabilityChanged || t == DataTypeTrendingContract
}

// IsComment reports whether events of this type surface a comment.
func (t FeedDataType) IsComment() bool {
	return t == DataTypeNewComment || t == DataTypePopularComment
}

// FeedReason describes why an event was surfaced to this particular user.
type FeedReason string

const (
	ReasonFollowedContract       FeedReason = "follow_contract"
	ReasonLikedContract          FeedReason = "liked_contract"
	ReasonViewedContract         FeedReason = "viewed_contract"
	ReasonContractInGroup        FeedReason = "contract_in_group_you_are_in"
	ReasonSimilarInterestToUser  FeedReason = "similar_interest_vector_to_user"
	ReasonSimilarInterestToLabel FeedReason = "similar_interest_vector_to_contract"
	ReasonFollowedUser           FeedReason = "follow_user"
)

// Valid reports whether r is a known reason.
func (r FeedReason) Valid() bool {
	switch r {
	case ReasonFollowedContract, ReasonLikedContract, ReasonViewedContract,
		ReasonContractInGroup, ReasonSimilarInterestToUser,
		ReasonSimilarInterestToLabel, ReasonFollowedUser:
		return true
	}
	return false
}
