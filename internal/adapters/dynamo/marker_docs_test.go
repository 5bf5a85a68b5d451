package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/ports"
)

type mockAPI struct {
	putFn    func(ctx context.Context, in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	updateFn func(ctx context.Context, in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	queryFn  func(ctx context.Context, in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error)

	describeFn func(ctx context.Context, in *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error)
}

func (m *mockAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putFn != nil {
		return m.putFn(ctx, in)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, in)
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockAPI) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, in)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockAPI) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.describeFn != nil {
		return m.describeFn(ctx, in)
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func TestPing(t *testing.T) {
	var table string
	api := &mockAPI{describeFn: func(ctx context.Context, in *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
		table = *in.TableName
		return nil, errors.New("ResourceNotFoundException")
	}}
	if err := NewMarkerDocs(api, "markers-tbl").Ping(context.Background()); err == nil {
		t.Error("expected ping error for missing table")
	}
	if table != "markers-tbl" {
		t.Errorf("expected DescribeTable on markers-tbl, got %q", table)
	}
}

func TestAppendInput(t *testing.T) {
	in := appendInput("tbl", ports.DocumentRef{Collection: "markers", ID: "m1"}, map[string]string{
		domain.FieldPhotos:    "a.jpg",
		domain.FieldImageURLs: "https://x/a",
	})

	want := "SET #f0 = list_append(if_not_exists(#f0, :empty), :v0), #f1 = list_append(if_not_exists(#f1, :empty), :v1)"
	if *in.UpdateExpression != want {
		t.Errorf("unexpected update expression:\n got %s\nwant %s", *in.UpdateExpression, want)
	}
	if in.ExpressionAttributeNames["#f0"] != "imageURLs" || in.ExpressionAttributeNames["#f1"] != "photos" {
		t.Errorf("unexpected names %v", in.ExpressionAttributeNames)
	}
	if *in.ConditionExpression != "attribute_exists(#id)" {
		t.Errorf("expected existence condition, got %s", *in.ConditionExpression)
	}
}

func TestWrite_MarshalsDocument(t *testing.T) {
	var got map[string]dynamodbtypes.AttributeValue
	api := &mockAPI{putFn: func(ctx context.Context, in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		got = in.Item
		return &dynamodb.PutItemOutput{}, nil
	}}
	docs := NewMarkerDocs(api, "tbl")

	err := docs.Write(context.Background(), ports.DocumentRef{Collection: "markers", ID: "m1"}, domain.MarkerDocument{
		Coordinate: domain.Coordinate{Latitude: 37.7749, Longitude: -122.4194},
		Address:    "Main, X, Y, Z",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var back item
	if err := attributevalue.UnmarshalMap(got, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != "m1" || back.Collection != "markers" {
		t.Errorf("unexpected keys %+v", back)
	}
	if back.Coordinate.Latitude != 37.7749 || back.Coordinate.Longitude != -122.4194 {
		t.Errorf("coordinate changed: %+v", back.Coordinate)
	}
	for _, f := range []string{"photos", "imageURLs"} {
		if _, ok := got[f].(*dynamodbtypes.AttributeValueMemberL); !ok {
			t.Errorf("expected %s stored as an empty list, got %T", f, got[f])
		}
	}
}

func TestListAll_FollowsPages(t *testing.T) {
	page := 0
	api := &mockAPI{queryFn: func(ctx context.Context, in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		page++
		row, _ := attributevalue.MarshalMap(item{Collection: "markers", ID: "m" + string(rune('0'+page))})
		out := &dynamodb.QueryOutput{Items: []map[string]dynamodbtypes.AttributeValue{row}}
		if page == 1 {
			out.LastEvaluatedKey = map[string]dynamodbtypes.AttributeValue{
				"id": &dynamodbtypes.AttributeValueMemberS{Value: "m1"},
			}
		}
		return out, nil
	}}

	snaps, err := NewMarkerDocs(api, "tbl").ListAll(context.Background(), "markers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps) != 2 || snaps[0].ID != "m1" || snaps[1].ID != "m2" {
		t.Errorf("unexpected snapshots %+v", snaps)
	}
}

func TestAppend_MissingItem(t *testing.T) {
	api := &mockAPI{updateFn: func(ctx context.Context, in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		return nil, &dynamodbtypes.ConditionalCheckFailedException{}
	}}
	err := NewMarkerDocs(api, "tbl").AppendToArrayFields(context.Background(),
		ports.DocumentRef{Collection: "markers", ID: "gone"}, map[string]string{domain.FieldPhotos: "a"})
	if !errors.Is(err, domain.ErrMarkerNotFound) {
		t.Errorf("expected ErrMarkerNotFound, got %v", err)
	}
}
