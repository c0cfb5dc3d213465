// Package dynamo stores submitted claims and their events in a single
// DynamoDB table keyed by PK/SK.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
)

const (
	claimSK     = "META"
	eventPrefix = "EVENT#"
	eventTime   = "2006-01-02T15:04:05.000000000Z"
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store implements ports.ClaimStore on DynamoDB.
type Store struct {
	db    API
	table string
}

var _ ports.ClaimStore = (*Store)(nil)

// New creates a store for table using the given client.
func New(db API, table string) (*Store, error) {
	if table == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}
	return &Store{db: db, table: table}, nil
}

type claimItem struct {
	PK string `dynamodbav:"PK"` // CLAIM#<id>
	SK string `dynamodbav:"SK"` // META
	domain.ClaimRecord
}

type eventItem struct {
	PK string `dynamodbav:"PK"` // CLAIM#<claim id>
	SK string `dynamodbav:"SK"` // EVENT#<timestamp>#<event id>
	domain.ClaimEvent
}

func claimPK(id string) string {
	return "CLAIM#" + id
}

func keyOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func (s *Store) SaveClaim(ctx context.Context, rec *domain.ClaimRecord) error {
	item, err := attributevalue.MarshalMap(claimItem{PK: claimPK(rec.ID), SK: claimSK, ClaimRecord: *rec})
	if err != nil {
		return fmt.Errorf("failed to marshal claim: %w", err)
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save claim: %w", err)
	}
	return nil
}

func (s *Store) GetClaim(ctx context.Context, id string) (*domain.ClaimRecord, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyOf(claimPK(id), claimSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("claim %s: %w", id, ports.ErrNotFound)
	}
	var item claimItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal claim: %w", err)
	}
	return normalize(&item.ClaimRecord), nil
}

// ListClaims scans the claim items and filters them in process. Claim
// volumes per merchant are small enough that a GSI is not worth the cost.
func (s *Store) ListClaims(ctx context.Context, filter ports.ClaimFilter) ([]*domain.ClaimRecord, int, error) {
	p := dynamodb.NewScanPaginator(s.db, &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("SK = :meta"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":meta": &types.AttributeValueMemberS{Value: claimSK},
		},
	})

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var matched []*domain.ClaimRecord
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan claims: %w", err)
		}
		var items []claimItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal claims: %w", err)
		}
		for i := range items {
			rec := normalize(&items[i].ClaimRecord)
			if filter.Status != "" && rec.Status != filter.Status {
				continue
			}
			if filter.ClaimType != "" && rec.ClaimType != filter.ClaimType {
				continue
			}
			if search != "" && !matches(rec, search) {
				continue
			}
			matched = append(matched, rec)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].SubmittedAt.Equal(matched[j].SubmittedAt) {
			return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = ports.DefaultListLimit
	}
	if filter.Offset >= total {
		return []*domain.ClaimRecord{}, total, nil
	}
	end := min(filter.Offset+limit, total)
	return matched[filter.Offset:end], total, nil
}

func matches(rec *domain.ClaimRecord, search string) bool {
	for _, v := range []string{rec.ID, rec.UserName, rec.UserEmail, rec.ProductName} {
		if strings.Contains(strings.ToLower(v), search) {
			return true
		}
	}
	return false
}

func (s *Store) UpdateClaimStatus(ctx context.Context, id string, status domain.ClaimStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid claim status %q", status)
	}
	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 keyOf(claimPK(id), claimSK),
		UpdateExpression:    aws.String("SET #status = :status"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("claim %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update claim status: %w", err)
	}
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, event *domain.ClaimEvent) error {
	item, err := attributevalue.MarshalMap(eventItem{
		PK:         claimPK(event.ClaimID),
		SK:         eventSortKey(event.Timestamp, event.ID),
		ClaimEvent: *event,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal claim event: %w", err)
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to append claim event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, claimID string) ([]*domain.ClaimEvent, error) {
	p := dynamodb.NewQueryPaginator(s.db, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: claimPK(claimID)},
			":prefix": &types.AttributeValueMemberS{Value: eventPrefix},
		},
		ScanIndexForward: aws.Bool(true),
	})

	var events []*domain.ClaimEvent
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query claim events: %w", err)
		}
		var items []eventItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal claim events: %w", err)
		}
		for i := range items {
			e := items[i].ClaimEvent
			events = append(events, &e)
		}
	}
	return events, nil
}

func (s *Store) Close() error {
	return nil
}

func normalize(rec *domain.ClaimRecord) *domain.ClaimRecord {
	if rec.Files == nil {
		rec.Files = []string{}
	}
	rec.SubmittedAt = rec.SubmittedAt.UTC()
	cp := *rec
	return &cp
}

// eventSortKey orders events by time within a claim partition.
func eventSortKey(ts time.Time, id string) string {
	return eventPrefix + ts.UTC().Format(eventTime) + "#" + id
}
