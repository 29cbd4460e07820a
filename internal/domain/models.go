// Package domain contains the core domain models.
// This layer is pure: no infrastructure dependencies, only data shapes and
// the behavior that belongs to them.
package domain

import "time"

// FeedEvent is one row of the per-user feed event log.
//
// CreatedTimestamp holds the store-native string form of the creation time
// and is what pagination cursors compare against. The store keeps more
// precision than epoch milliseconds, so the string must be carried verbatim;
// CreatedTime is the derived numeric form used only for sorting and display.
type FeedEvent struct {
	ID               int64          `json:"id"`
	UserID           string         `json:"userId"`
	CreatorID        string         `json:"creatorId,omitempty"`
	DataType         FeedDataType   `json:"dataType"`
	Reason           FeedReason     `json:"reason"`
	CreatedTime      int64          `json:"createdTime"` // epoch milliseconds
	CreatedTimestamp string         `json:"createdTimestamp"`
	ContractID       *string        `json:"contractId"`
	CommentID        *string        `json:"commentId"`
	NewsID           *string        `json:"newsId"`
	SeenTime         *string        `json:"seenTime,omitempty"`
	IsCopied         bool           `json:"isCopied,omitempty"`
	Data             map[string]any `json:"data,omitempty"`
}

// TimelineItem is one renderable feed entry, a FeedEvent enriched with the
// entities it references. A news item may aggregate several contracts; a
// market item carries at most one contract and at most one comment.
type TimelineItem struct {
	ID                int64          `json:"id"`
	DataType          FeedDataType   `json:"dataType"`
	Reason            FeedReason     `json:"reason"`
	ReasonDescription string         `json:"reasonDescription,omitempty"`
	CreatedTime       int64          `json:"createdTime"`
	CreatedTimestamp  string         `json:"createdTimestamp"`
	ContractID        *string        `json:"contractId"`
	CommentID         *string        `json:"commentId"`
	NewsID            *string        `json:"newsId"`
	AvatarURL         string         `json:"avatarUrl,omitempty"`
	Contract          *Contract      `json:"contract,omitempty"`
	Contracts         []Contract     `json:"contracts,omitempty"`
	Comments          []Comment      `json:"comments,omitempty"`
	News              *News          `json:"news,omitempty"`
	ProbChange        *int           `json:"probChange,omitempty"` // rounded percentage points
	IsCopied          bool           `json:"isCopied,omitempty"`
	Data              map[string]any `json:"data,omitempty"`
}

// MechanismCPMM is the continuous constant-product market mechanism.
// Probability-delta computation only applies to markets using it.
const MechanismCPMM = "cpmm-1"

// ProbChanges holds rolling probability deltas maintained by the market.
type ProbChanges struct {
	Day   float64 `json:"day" dynamodbav:"day"`
	Week  float64 `json:"week" dynamodbav:"week"`
	Month float64 `json:"month" dynamodbav:"month"`
}

// Contract is a prediction market.
type Contract struct {
	ID               string      `json:"id" dynamodbav:"id"`
	CreatorID        string      `json:"creatorId" dynamodbav:"creatorId"`
	CreatorName      string      `json:"creatorName" dynamodbav:"creatorName"`
	CreatorUsername  string      `json:"creatorUsername" dynamodbav:"creatorUsername"`
	CreatorAvatarURL string      `json:"creatorAvatarUrl" dynamodbav:"creatorAvatarUrl"`
	Question         string      `json:"question" dynamodbav:"question"`
	Mechanism        string      `json:"mechanism" dynamodbav:"mechanism"`
	Prob             float64     `json:"prob" dynamodbav:"prob"`
	ProbChanges      ProbChanges `json:"probChanges" dynamodbav:"probChanges"`
	CreatedTime      int64       `json:"createdTime" dynamodbav:"createdTime"` // epoch ms
	CloseTime        *int64      `json:"closeTime" dynamodbav:"closeTime"`     // epoch ms
	IsResolved       bool        `json:"isResolved" dynamodbav:"isResolved"`
	Visibility       string      `json:"visibility" dynamodbav:"visibility"`
}

// Closed reports whether the contract's close time has passed at the given
// instant. Resolution is tracked separately by IsResolved.
func (c *Contract) Closed(now time.Time) bool {
	return c.CloseTime != nil && *c.CloseTime < now.UnixMilli()
}

// ContentNode is one node of a comment's rendered rich-text content.
type ContentNode struct {
	Type string `json:"type" dynamodbav:"type"`
	Text string `json:"text,omitempty" dynamodbav:"text,omitempty"`
}

// Comment is a comment on a contract.
type Comment struct {
	ID            string        `json:"id" dynamodbav:"id"`
	ContractID    string        `json:"contractId" dynamodbav:"contractId"`
	UserID        string        `json:"userId" dynamodbav:"userId"`
	UserName      string        `json:"userName" dynamodbav:"userName"`
	UserUsername  string        `json:"userUsername" dynamodbav:"userUsername"`
	UserAvatarURL string        `json:"userAvatarUrl" dynamodbav:"userAvatarUrl"`
	Content       []ContentNode `json:"content" dynamodbav:"content"`
	Hidden        bool          `json:"hidden" dynamodbav:"hidden"`
	Likes         int           `json:"likes" dynamodbav:"likes"`
	CreatedTime   int64         `json:"createdTime" dynamodbav:"createdTime"`
}

// News is an external news article linked to one or more contracts.
type News struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	ImageURL      string `json:"urlToImage,omitempty"`
	PublishedTime int64  `json:"publishedTime"`
}

// User is a public user profile.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Bio         string `json:"bio,omitempty"`
	CreatedTime int64  `json:"createdTime"`
}

// PrivateUser carries the viewer-private settings that drive feed filtering.
type PrivateUser struct {
	ID                 string   `json:"id"`
	BlockedUserIDs     []string `json:"blockedUserIds"`
	BlockedContractIDs []string `json:"blockedContractIds"`
}

// HasBlockedUser reports whether the viewer has blocked the given user.
func (p *PrivateUser) HasBlockedUser(userID string) bool {
	if p == nil {
		return false
	}
	for _, id := range p.BlockedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasBlockedContract reports whether the viewer has blocked the given contract.
func (p *PrivateUser) HasBlockedContract(contractID string) bool {
	if p == nil {
		return false
	}
	for _, id := range p.BlockedContractIDs {
		if id == contractID {
			return true
		}
	}
	return false
}

// Boost is a sponsored listing surfaced alongside the feed.
type Boost struct {
	ID         string         `json:"id"`
	ContractID string         `json:"contractId"`
	Funded     int64          `json:"funded"`
	Data       map[string]any `json:"data,omitempty"`
}
