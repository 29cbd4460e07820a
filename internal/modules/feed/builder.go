package feed

import (
	"sort"
	"time"

	"github.com/tidemark-app/tidemark/internal/domain"
)

// dedupPriority orders data types for the contract-id dedup tie-break.
// When two raw events reference the same contract, the one whose type tells
// the user more wins; remaining ties go to the most recent event.
var dedupPriority = map[domain.FeedDataType]int{
	domain.DataTypeProbabilityChanged:       4,
	domain.DataTypeTrendingContract:         3,
	domain.DataTypeNewContract:              2,
	domain.DataTypePopularComment:           1,
	domain.DataTypeNewComment:               1,
	domain.DataTypeNewsWithRelatedContracts: 0,
}

// BuildTimelineItems transforms a batch of raw events plus their resolved
// related entities into display-ready timeline items.
//
// News-linked events are grouped per news id: the first event of a group is
// the template and every contract referenced by the group is attached.
// Market-linked events resolve their contract from the enrichment set; an
// unresolved contract means the market was already surfaced (or filtered)
// and the event is dropped silently. Comment-carrying events attach exactly
// one comment. The combined output holds one item per contract id and is
// sorted by descending creation time.
func BuildTimelineItems(
	events []domain.FeedEvent,
	contracts []domain.Contract,
	comments []domain.Comment,
	news []domain.News,
	now time.Time,
	significanceThreshold float64,
) []domain.TimelineItem {
	contractByID := make(map[string]*domain.Contract, len(contracts))
	for i := range contracts {
		contractByID[contracts[i].ID] = &contracts[i]
	}
	commentByID := make(map[string]*domain.Comment, len(comments))
	for i := range comments {
		commentByID[comments[i].ID] = &comments[i]
	}
	newsByID := make(map[string]*domain.News, len(news))
	for i := range news {
		newsByID[news[i].ID] = &news[i]
	}

	newsItems := buildNewsItems(events, contractByID, newsByID)
	marketItems := buildMarketItems(events, contractByID, commentByID, now, significanceThreshold)

	items := append(newsItems, marketItems...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedTime > items[j].CreatedTime
	})
	return items
}

// buildNewsItems groups news-linked events by news id, one item per distinct
// news id, preserving first-appearance order.
func buildNewsItems(
	events []domain.FeedEvent,
	contractByID map[string]*domain.Contract,
	newsByID map[string]*domain.News,
) []domain.TimelineItem {
	var order []string
	grouped := make(map[string][]domain.FeedEvent)
	for _, event := range events {
		if event.NewsID == nil {
			continue
		}
		id := *event.NewsID
		if _, seen := grouped[id]; !seen {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], event)
	}

	items := make([]domain.TimelineItem, 0, len(order))
	for _, newsID := range order {
		group := grouped[newsID]
		template := group[0]

		var related []domain.Contract
		for _, event := range group {
			if event.ContractID == nil {
				continue
			}
			if contract := contractByID[*event.ContractID]; contract != nil {
				related = append(related, *contract)
			}
		}

		item := baseTimelineItem(template)
		item.NewsID = &newsID
		item.Contracts = related
		item.News = newsByID[newsID]
		if len(related) > 0 {
			item.AvatarURL = related[0].CreatorAvatarURL
		}
		items = append(items, item)
	}
	return items
}

// buildMarketItems assembles one item per market-linked event, applies the
// comment and movement suppressions, and deduplicates by contract id with an
// explicit tie-break.
func buildMarketItems(
	events []domain.FeedEvent,
	contractByID map[string]*domain.Contract,
	commentByID map[string]*domain.Comment,
	now time.Time,
	significanceThreshold float64,
) []domain.TimelineItem {
	var order []string
	chosen := make(map[string]domain.TimelineItem)
	chosenEvent := make(map[string]domain.FeedEvent)

	for _, event := range events {
		if event.NewsID != nil || event.ContractID == nil {
			continue
		}

		contract := contractByID[*event.ContractID]
		if contract == nil {
			// Not in the enrichment set: the market was filtered out or is
			// already on screen. Dropping here is what routes comment-only
			// updates onto already-surfaced markets instead of duplicating.
			continue
		}

		if event.DataType.IsComment() && ShouldIgnoreCommentsOnContract(contract, now) {
			continue
		}

		movement := MarketMovement(contract, event.DataType, event.Data, now, significanceThreshold)
		if movement.Ignore {
			continue
		}

		var attached []domain.Comment
		if event.CommentID != nil {
			// One comment per feed item; a comment id without a surviving
			// comment means the comment was filtered, so the event goes too.
			comment := commentByID[*event.CommentID]
			if comment == nil || IsNoiseComment(comment) {
				continue
			}
			attached = []domain.Comment{*comment}
		}

		item := baseTimelineItem(event)
		item.ContractID = event.ContractID
		item.CommentID = event.CommentID
		item.Contract = contract
		item.Comments = attached
		item.ProbChange = movement.ProbChange
		if len(attached) > 0 {
			item.AvatarURL = attached[0].UserAvatarURL
		} else {
			item.AvatarURL = contract.CreatorAvatarURL
		}

		key := *event.ContractID
		previous, exists := chosenEvent[key]
		if !exists {
			order = append(order, key)
			chosen[key] = item
			chosenEvent[key] = event
			continue
		}
		if eventOutranks(event, previous) {
			chosen[key] = item
			chosenEvent[key] = event
		}
	}

	items := make([]domain.TimelineItem, 0, len(order))
	for _, key := range order {
		items = append(items, chosen[key])
	}
	return items
}

// eventOutranks decides the contract-id dedup survivor: higher data-type
// priority first, then the more recent event.
func eventOutranks(candidate, incumbent domain.FeedEvent) bool {
	cp, ip := dedupPriority[candidate.DataType], dedupPriority[incumbent.DataType]
	if cp != ip {
		return cp > ip
	}
	return candidate.CreatedTime > incumbent.CreatedTime
}

// baseTimelineItem copies the fields every item inherits from its raw event.
func baseTimelineItem(event domain.FeedEvent) domain.TimelineItem {
	return domain.TimelineItem{
		ID:                event.ID,
		DataType:          event.DataType,
		Reason:            event.Reason,
		ReasonDescription: Explanation(event.DataType, event.Reason),
		CreatedTime:       event.CreatedTime,
		CreatedTimestamp:  event.CreatedTimestamp,
		IsCopied:          event.IsCopied,
		Data:              event.Data,
	}
}
