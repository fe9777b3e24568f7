// Package dynamo implements the job store on DynamoDB.
//
// The job table is keyed by job_id with a TTL on expires_at. Status filters
// run as table scans: the non-terminal set is tiny relative to the table
// and a secondary index is not worth its write amplification here.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"replicator/internal/apperrors"
	"replicator/internal/awsutil"
	"replicator/internal/job"
)

// API is the DynamoDB surface the store uses.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Store is the DynamoDB-backed job.Store.
type Store struct {
	client API
	table  string
	logger *slog.Logger
}

var _ job.Store = (*Store)(nil)

// New creates a store from the ambient AWS credential chain and JOBS_TABLE.
func New(ctx context.Context) (*Store, error) {
	awsCfg, err := awsutil.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint := awsutil.Endpoint(); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return NewWithClient(client, LoadConfigFromEnv().Table), nil
}

// NewWithClient creates a store around an existing client.
func NewWithClient(client API, table string) *Store {
	return &Store{
		client: client,
		table:  table,
		logger: slog.With("component", "dynamo-store", "table", table),
	}
}

// Put writes a full record, replacing any existing item with the same ID.
// IDs are generated, so collisions only occur on retried writes of the
// same record.
func (s *Store) Put(ctx context.Context, rec *job.Record) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      marshalRecord(rec),
	})
	if err != nil {
		return fmt.Errorf("failed to put job %s: %w", rec.ID, err)
	}
	return nil
}

// Get reads one record. Reads are strongly consistent: status queries
// immediately follow writes from submit and worker callbacks.
func (s *Store) Get(ctx context.Context, id string) (*job.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]types.AttributeValue{attrJobID: &types.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, apperrors.Unavailable("job store", "GetItem", err)
	}
	if len(out.Item) == 0 {
		return nil, apperrors.NotFound("job", id)
	}
	return unmarshalRecord(out.Item), nil
}

// Update applies a partial update to a record.
//
// Writes that would move a job OUT of a terminal state carry a condition
// and are silently dropped when the condition fails: completed and failed
// are final, and a late worker callback must not resurrect a job the
// sweeper already closed. Writes TO a terminal state are unconditional,
// which is what makes repeated sweeps idempotent.
func (s *Store) Update(ctx context.Context, id string, fields job.Fields) error {
	var (
		sets   []string
		names  = map[string]string{}
		values = map[string]types.AttributeValue{}
	)

	set := func(attr string, value types.AttributeValue) {
		placeholder := "#a" + attr
		names[placeholder] = attr
		valueKey := ":v" + attr
		values[valueKey] = value
		sets = append(sets, placeholder+" = "+valueKey)
	}

	if fields.Status != nil {
		set(attrStatus, &types.AttributeValueMemberS{Value: string(*fields.Status)})
	}
	if fields.Error != nil {
		set(attrError, &types.AttributeValueMemberS{Value: *fields.Error})
	}
	if fields.InstanceID != nil {
		set(attrInstanceID, &types.AttributeValueMemberS{Value: *fields.InstanceID})
	}
	if fields.UpdatedAt != nil {
		set(attrUpdatedAt, &types.AttributeValueMemberS{Value: fields.UpdatedAt.UTC().Format(timeFormats[0])})
	}
	if len(sets) == 0 {
		return nil
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       map[string]types.AttributeValue{attrJobID: &types.AttributeValueMemberS{Value: id}},
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}

	if fields.Status != nil && !fields.Status.Terminal() {
		names["#cur"] = attrStatus
		values[":completed"] = &types.AttributeValueMemberS{Value: string(job.StateCompleted)}
		values[":failed"] = &types.AttributeValueMemberS{Value: string(job.StateFailed)}
		input.ConditionExpression = aws.String("attribute_not_exists(#cur) OR NOT #cur IN (:completed, :failed)")
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			s.logger.Warn("Dropped status write against terminal job", "jobId", id, "status", *fields.Status)
			return nil
		}
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return nil
}

// ScanStatus streams every record currently in one of the given states.
// All pages are drained; a failure on any page aborts the enumeration so
// callers never act on a partial view.
func (s *Store) ScanStatus(ctx context.Context, states []job.State, fn func(*job.Record) error) error {
	names := map[string]string{"#st": attrStatus}
	values := map[string]types.AttributeValue{}
	placeholders := make([]string, 0, len(states))
	for i, state := range states {
		key := fmt.Sprintf(":s%d", i)
		values[key] = &types.AttributeValueMemberS{Value: string(state)}
		placeholders = append(placeholders, key)
	}

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          aws.String("#st IN (" + strings.Join(placeholders, ", ") + ")"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return apperrors.Unavailable("job store", "Scan", err)
		}
		for _, item := range page.Items {
			if err := fn(unmarshalRecord(item)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Ready verifies the table is reachable and active.
func (s *Store) Ready(ctx context.Context) error {
	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		return fmt.Errorf("job table unreachable: %w", err)
	}
	if out.Table != nil && out.Table.TableStatus != types.TableStatusActive {
		return fmt.Errorf("job table %s not active: %s", s.table, out.Table.TableStatus)
	}
	return nil
}
