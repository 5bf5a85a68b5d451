package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/ports"
)

// API is the subset of the DynamoDB client used by MarkerDocs.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// item is the table row: collection is the partition key, id the sort key.
type item struct {
	Collection string            `dynamodbav:"collection"`
	ID         string            `dynamodbav:"id"`
	Coordinate domain.Coordinate `dynamodbav:"coordinate"`
	Address    string            `dynamodbav:"address"`
	Photos     []string          `dynamodbav:"photos"`
	ImageURLs  []string          `dynamodbav:"imageURLs"`
	CreatedAt  time.Time         `dynamodbav:"createdAt"`
}

// MarkerDocs implements ports.DocumentStore on a DynamoDB table.
type MarkerDocs struct {
	client    API
	tableName string
}

// NewClient builds a DynamoDB client from the default AWS credential chain.
// A non-empty endpoint targets a local emulator.
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewMarkerDocs creates a DynamoDB-backed document store.
func NewMarkerDocs(client API, tableName string) *MarkerDocs {
	return &MarkerDocs{client: client, tableName: tableName}
}

// Ping reports whether the table is reachable.
func (r *MarkerDocs) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.tableName)})
	return err
}

// ReserveID allocates a random document id. Nothing is written until Write.
func (r *MarkerDocs) ReserveID(ctx context.Context, collection string) (ports.DocumentRef, error) {
	return ports.DocumentRef{Collection: collection, ID: uuid.NewString()}, nil
}

// Write stores the whole document, replacing any previous version.
func (r *MarkerDocs) Write(ctx context.Context, ref ports.DocumentRef, doc domain.MarkerDocument) error {
	av, err := attributevalue.MarshalMap(item{
		Collection: ref.Collection,
		ID:         ref.ID,
		Coordinate: doc.Coordinate,
		Address:    doc.Address,
		Photos:     nonNil(doc.Photos),
		ImageURLs:  nonNil(doc.ImageURLs),
		CreatedAt:  doc.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", ref.Collection, ref.ID, err)
	}
	return nil
}

// ListAll queries the whole collection partition, following pagination.
func (r *MarkerDocs) ListAll(ctx context.Context, collection string) ([]ports.DocumentSnapshot, error) {
	var (
		out  []ports.DocumentSnapshot
		last map[string]dynamodbtypes.AttributeValue
	)
	for {
		input := &dynamodb.QueryInput{
			TableName:                aws.String(r.tableName),
			KeyConditionExpression:   aws.String("#c = :c"),
			ExpressionAttributeNames: map[string]string{"#c": "collection"},
			ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
				":c": &dynamodbtypes.AttributeValueMemberS{Value: collection},
			},
		}
		if last != nil {
			input.ExclusiveStartKey = last
		}

		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}

		var items []item
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", collection, err)
		}
		for _, it := range items {
			out = append(out, ports.DocumentSnapshot{
				ID: it.ID,
				Data: domain.MarkerDocument{
					Coordinate: it.Coordinate,
					Address:    it.Address,
					Photos:     it.Photos,
					ImageURLs:  it.ImageURLs,
					CreatedAt:  it.CreatedAt,
				},
			})
		}

		last = result.LastEvaluatedKey
		if len(last) == 0 {
			break
		}
	}
	return out, nil
}

// AppendToArrayFields appends one value per field with a single UpdateItem
// using list_append. The item must already exist.
func (r *MarkerDocs) AppendToArrayFields(ctx context.Context, ref ports.DocumentRef, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	_, err := r.client.UpdateItem(ctx, appendInput(r.tableName, ref, values))
	if err != nil {
		var ccf *dynamodbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("append %s/%s: %w", ref.Collection, ref.ID, domain.ErrMarkerNotFound)
		}
		return fmt.Errorf("append %s/%s: %w", ref.Collection, ref.ID, err)
	}
	return nil
}

func appendInput(table string, ref ports.DocumentRef, values map[string]string) *dynamodb.UpdateItemInput {
	fields := make([]string, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	names := map[string]string{"#id": "id"}
	vals := map[string]dynamodbtypes.AttributeValue{
		":empty": &dynamodbtypes.AttributeValueMemberL{Value: []dynamodbtypes.AttributeValue{}},
	}
	sets := make([]string, 0, len(fields))
	for i, f := range fields {
		n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)
		names[n] = f
		vals[v] = &dynamodbtypes.AttributeValueMemberL{Value: []dynamodbtypes.AttributeValue{
			&dynamodbtypes.AttributeValueMemberS{Value: values[f]},
		}}
		sets = append(sets, fmt.Sprintf("%s = list_append(if_not_exists(%s, :empty), %s)", n, n, v))
	}

	return &dynamodb.UpdateItemInput{
		TableName: aws.String(table),
		Key: map[string]dynamodbtypes.AttributeValue{
			"collection": &dynamodbtypes.AttributeValueMemberS{Value: ref.Collection},
			"id":         &dynamodbtypes.AttributeValueMemberS{Value: ref.ID},
		},
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: vals,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
