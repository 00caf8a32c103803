package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrConcurrentModification is returned when a concurrent publish is
// detected.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// ErrNoSnapshot is returned when no snapshot has been published yet.
var ErrNoSnapshot = errors.New("no published snapshot")

// DDBClient is the interface for the DynamoDB operations the commit store
// needs.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// CommitStore publishes snapshot versions atomically. Snapshot blobs live
// in S3 under versioned keys; DynamoDB conditional writes provide the
// compare-and-swap S3 lacks, so concurrent writers can never clobber each
// other's publish.
//
// Table schema:
//   - Partition key: base_uri (string), the S3 bucket/prefix
//   - Sort key: version (number), monotonically increasing
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name cagra-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	ddbClient DDBClient
	tableName string
	baseURI   string
}

// NewCommitStore creates a commit store coordinating snapshots under
// baseURI ("s3://bucket/prefix" format, used as the partition key).
func NewCommitStore(ddbClient DDBClient, tableName, baseURI string) *CommitStore {
	return &CommitStore{
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Publish atomically records snapshotKey as the next snapshot version and
// returns the version number. Returns ErrConcurrentModification when
// another writer published the same version first.
func (s *CommitStore) Publish(ctx context.Context, snapshotKey string) (uint64, error) {
	current, _, err := s.latest(ctx)
	if err != nil && !errors.Is(err, ErrNoSnapshot) {
		return 0, err
	}

	next := current + 1

	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":     &types.AttributeValueMemberS{Value: s.baseURI},
			"version":      &types.AttributeValueMemberN{Value: strconv.FormatUint(next, 10)},
			"snapshot_key": &types.AttributeValueMemberS{Value: snapshotKey},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, ErrConcurrentModification
		}
		return 0, fmt.Errorf("failed to commit version: %w", err)
	}

	return next, nil
}

// Current returns the latest published version and its snapshot key.
func (s *CommitStore) Current(ctx context.Context) (uint64, string, error) {
	return s.latest(ctx)
}

func (s *CommitStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false), // Descending order
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to query commit table: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, "", ErrNoSnapshot
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid version attribute")
	}
	keyAttr, ok := item["snapshot_key"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid snapshot_key attribute")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse version: %w", err)
	}

	return version, keyAttr.Value, nil
}
