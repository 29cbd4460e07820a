// Package docstore provides the document-store adapter over DynamoDB.
// Contracts and comments live here as documents; the relational store only
// holds their ids. Lookups are batch-by-id with client-side filtering for the
// predicates DynamoDB cannot express cheaply.
package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/tidemark-app/tidemark/internal/domain"
)

// DynamoDB caps BatchGetItem at 100 keys per request.
const maxBatchKeys = 100

// Config holds document store configuration
type Config struct {
	Region         string
	Endpoint       string // optional override for local development
	ContractsTable string
	CommentsTable  string
}

// Client implements domain.DocumentStore on DynamoDB.
type Client struct {
	db             *dynamodb.Client
	contractsTable string
	commentsTable  string
	log            zerolog.Logger
	now            func() time.Time
}

// New creates a document store client from AWS default credentials.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	db := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewWithClient(db, cfg, log), nil
}

// NewWithClient creates a document store around an existing DynamoDB client.
// Used by tests and local tooling.
func NewWithClient(db *dynamodb.Client, cfg Config, log zerolog.Logger) *Client {
	return &Client{
		db:             db,
		contractsTable: cfg.ContractsTable,
		commentsTable:  cfg.CommentsTable,
		log:            log.With().Str("component", "docstore").Logger(),
		now:            time.Now,
	}
}

// GetContracts resolves contracts by id, dropping resolved contracts and
// contracts whose close time has passed.
func (c *Client) GetContracts(ctx context.Context, ids []string) ([]domain.Contract, error) {
	items, err := c.batchGet(ctx, c.contractsTable, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to batch get contracts: %w", err)
	}

	now := c.now()
	contracts := make([]domain.Contract, 0, len(items))
	for _, item := range items {
		var contract domain.Contract
		if err := attributevalue.UnmarshalMap(item, &contract); err != nil {
			c.log.Warn().Err(err).Msg("Skipping unreadable contract document")
			continue
		}
		if contract.IsResolved || contract.Closed(now) {
			continue
		}
		contracts = append(contracts, contract)
	}
	return contracts, nil
}

// GetComments resolves comments by id, dropping comments below the likes
// threshold.
func (c *Client) GetComments(ctx context.Context, ids []string, minLikes int) ([]domain.Comment, error) {
	items, err := c.batchGet(ctx, c.commentsTable, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to batch get comments: %w", err)
	}

	comments := make([]domain.Comment, 0, len(items))
	for _, item := range items {
		var comment domain.Comment
		if err := attributevalue.UnmarshalMap(item, &comment); err != nil {
			c.log.Warn().Err(err).Msg("Skipping unreadable comment document")
			continue
		}
		if comment.Likes < minLikes {
			continue
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// ScanActiveContracts returns all unresolved, open contracts. Used by the
// trending scan job; the contract table is small enough that a paginated
// scan is acceptable there.
func (c *Client) ScanActiveContracts(ctx context.Context) ([]domain.Contract, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(c.contractsTable),
	}

	now := c.now()
	var contracts []domain.Contract
	paginator := dynamodb.NewScanPaginator(c.db, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contracts: %w", err)
		}
		for _, item := range out.Items {
			var contract domain.Contract
			if err := attributevalue.UnmarshalMap(item, &contract); err != nil {
				c.log.Warn().Err(err).Msg("Skipping unreadable contract document")
				continue
			}
			if contract.IsResolved || contract.Closed(now) {
				continue
			}
			contracts = append(contracts, contract)
		}
	}
	return contracts, nil
}

// batchGet fetches documents by primary key id, chunking to the BatchGetItem
// limit and retrying unprocessed keys with backoff.
func (c *Client) batchGet(ctx context.Context, table string, ids []string) ([]map[string]types.AttributeValue, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var items []map[string]types.AttributeValue
	for start := 0; start < len(ids); start += maxBatchKeys {
		end := start + maxBatchKeys
		if end > len(ids) {
			end = len(ids)
		}

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: id},
			})
		}

		request := map[string]types.KeysAndAttributes{
			table: {Keys: keys},
		}

		backoff := 100 * time.Millisecond
		for attempt := 0; len(request) > 0; attempt++ {
			out, err := c.db.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: request,
			})
			if err != nil {
				return nil, err
			}
			items = append(items, out.Responses[table]...)

			if len(out.UnprocessedKeys) == 0 || len(out.UnprocessedKeys[table].Keys) == 0 {
				break
			}
			if attempt >= 3 {
				c.log.Warn().
					Str("table", table).
					Int("remaining", len(out.UnprocessedKeys[table].Keys)).
					Msg("Giving up on unprocessed batch keys")
				break
			}

			request = out.UnprocessedKeys
			select {
			case <-ctx.Done():
				return items, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return items, nil
}
