package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/matheus3301/sendme/internal/remote"
)

const (
	phoneIndex = "phone-index"
	emailIndex = "email-index"
)

type profileStore struct {
	b *Backend
}

func (s profileStore) Get(ctx context.Context, uid string) (*remote.Profile, error) {
	out, err := s.b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.b.tables.Profiles),
		Key: map[string]types.AttributeValue{
			"uid": &types.AttributeValueMemberS{Value: uid},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", uid, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec profileRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal profile %s: %w", uid, remote.ErrMalformedRecord)
	}
	p := rec.toProfile()
	return &p, nil
}

func (s profileStore) Put(ctx context.Context, p *remote.Profile) error {
	item, err := attributevalue.MarshalMap(fromProfile(p))
	if err != nil {
		return fmt.Errorf("marshal profile %s: %w", p.UID, err)
	}
	_, err = s.b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.b.tables.Profiles),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put profile %s: %w", p.UID, err)
	}
	return nil
}

func (s profileStore) FindByPhone(ctx context.Context, phone string) (*remote.Profile, error) {
	return s.queryIndex(ctx, phoneIndex, "phone", phone)
}

func (s profileStore) FindByEmail(ctx context.Context, email string) (*remote.Profile, error) {
	return s.queryIndex(ctx, emailIndex, "email", email)
}

func (s profileStore) queryIndex(ctx context.Context, index, attr, value string) (*remote.Profile, error) {
	out, err := s.b.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.b.tables.Profiles),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String("#a = :v"),
		ExpressionAttributeNames: map[string]string{
			"#a": attr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", index, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var rec profileRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, fmt.Errorf("unmarshal %s result: %w", index, remote.ErrMalformedRecord)
	}
	p := rec.toProfile()
	return &p, nil
}

func (s profileStore) List(ctx context.Context) ([]remote.Profile, error) {
	var profiles []remote.Profile
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.b.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.b.tables.Profiles),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan profiles: %w", err)
		}
		var recs []profileRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &recs); err != nil {
			return nil, fmt.Errorf("unmarshal profiles: %w", remote.ErrMalformedRecord)
		}
		for _, r := range recs {
			profiles = append(profiles, r.toProfile())
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return profiles, nil
}
