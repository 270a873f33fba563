package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"sales-agent/internal/domain"
)

const (
	skPrefixTurn = "TURN#"
	skMeta       = "META#"

	defaultRetention = 30 * 24 * time.Hour
	defaultLimit     = 50
)

var newUUID = uuid.NewString

// dynamodbAPI is the part of *dynamodb.Client used here.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client archives completed turns in a single DynamoDB table. Each session
// is one partition holding its turns and a META# summary item. The archive
// is write-behind: live conversation state never reads from it.
type Client struct {
	api       dynamodbAPI
	tableName string
	retention time.Duration
	now       func() time.Time
}

type Option func(*Client)

// WithRetention sets how long archived items live before DynamoDB TTL
// removes them.
func WithRetention(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retention = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func New(api dynamodbAPI, tableName string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	c := &Client{
		api:       api,
		tableName: tableName,
		retention: defaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// turnSK orders turns by time; the suffix keeps two turns recorded in the
// same instant apart.
func turnSK(ts time.Time) string {
	return skPrefixTurn + ts.UTC().Format(time.RFC3339Nano) + "#" + newUUID()[:8]
}

func (c *Client) expiry() string {
	return strconv.FormatInt(c.now().Add(c.retention).Unix(), 10)
}

// ArchiveTurn writes the turn and bumps the session summary in one
// transaction.
func (c *Client) ArchiveTurn(ctx context.Context, rec domain.TurnRecord) error {
	if strings.TrimSpace(rec.SessionID) == "" {
		return errors.New("repository: ArchiveTurn: session id is required")
	}
	at := rec.At
	if at.IsZero() {
		at = c.now()
	}
	rec.At = at.UTC()
	ttl := c.expiry()

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                turnItem(rec, turnSK(rec.At), ttl),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(c.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: sessionPK(rec.SessionID)},
						"SK": &types.AttributeValueMemberS{Value: skMeta},
					},
					UpdateExpression: aws.String("SET sessionId = :sid, lastActivity = :at, lastAction = :action, #ttl = :ttl ADD turns :one"),
					ExpressionAttributeNames: map[string]string{
						"#ttl": "ttl",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":sid":    &types.AttributeValueMemberS{Value: rec.SessionID},
						":at":     &types.AttributeValueMemberS{Value: rec.At.Format(time.RFC3339)},
						":action": &types.AttributeValueMemberS{Value: rec.Action},
						":ttl":    &types.AttributeValueMemberN{Value: ttl},
						":one":    &types.AttributeValueMemberN{Value: "1"},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: ArchiveTurn: %w", err)
	}
	return nil
}

// Transcript returns up to limit of the most recent turns of a session in
// chronological order.
func (c *Client) Transcript(ctx context.Context, sessionID string, limit int) ([]domain.TurnRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("repository: Transcript: session id is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Transcript query: %w", err)
	}

	turns := make([]domain.TurnRecord, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: Transcript unmarshal: %w", err)
		}
		turns = append(turns, rec)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// TurnCount returns how many turns have been archived for a session.
func (c *Client) TurnCount(ctx context.Context, sessionID string) (int, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("repository: TurnCount get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, nil
	}
	turns, err := intAttr(out.Item, "turns")
	if err != nil {
		return 0, fmt.Errorf("repository: TurnCount decode turns: %w", err)
	}
	return turns, nil
}

func turnItem(rec domain.TurnRecord, sk, ttl string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: sessionPK(rec.SessionID)},
		"SK":        &types.AttributeValueMemberS{Value: sk},
		"sessionId": &types.AttributeValueMemberS{Value: rec.SessionID},
		"at":        &types.AttributeValueMemberS{Value: rec.At.Format(time.RFC3339Nano)},
		"question":  &types.AttributeValueMemberS{Value: rec.Question},
		"answer":    &types.AttributeValueMemberS{Value: rec.Answer},
		"action":    &types.AttributeValueMemberS{Value: rec.Action},
		"success":   &types.AttributeValueMemberBOOL{Value: rec.Success},
		"vehicles":  &types.AttributeValueMemberN{Value: strconv.Itoa(rec.Vehicles)},
		"ttl":       &types.AttributeValueMemberN{Value: ttl},
	}
}

func itemToTurn(item map[string]types.AttributeValue) (domain.TurnRecord, error) {
	sessionID, err := strAttr(item, "sessionId")
	if err != nil {
		return domain.TurnRecord{}, err
	}
	question, err := strAttr(item, "question")
	if err != nil {
		return domain.TurnRecord{}, err
	}
	rawAt, err := strAttr(item, "at")
	if err != nil {
		return domain.TurnRecord{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, rawAt)
	if err != nil {
		return domain.TurnRecord{}, fmt.Errorf("repository: parse attribute \"at\": %w", err)
	}
	answer, _ := strAttr(item, "answer")
	action, _ := strAttr(item, "action")
	vehicles, _ := intAttr(item, "vehicles")
	success := false
	if b, ok := item["success"].(*types.AttributeValueMemberBOOL); ok {
		success = b.Value
	}

	return domain.TurnRecord{
		SessionID: sessionID,
		At:        at,
		Question:  question,
		Answer:    answer,
		Action:    action,
		Success:   success,
		Vehicles:  vehicles,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
