package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/matheus3301/sendme/internal/remote"
	"github.com/matheus3301/sendme/internal/stream"
)

type membershipIndex struct {
	b *Backend
}

func membershipKey(uid, chatID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"uid":    &types.AttributeValueMemberS{Value: uid},
		"chatId": &types.AttributeValueMemberS{Value: chatID},
	}
}

func (m membershipIndex) Set(ctx context.Context, uid, chatID string) error {
	item, err := attributevalue.MarshalMap(membershipRecord{UID: uid, ChatID: chatID})
	if err != nil {
		return fmt.Errorf("marshal membership %s/%s: %w", uid, chatID, err)
	}
	_, err = m.b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(m.b.tables.Membership),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("set membership %s/%s: %w", uid, chatID, err)
	}
	return nil
}

func (m membershipIndex) Remove(ctx context.Context, uid, chatID string) error {
	_, err := m.b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(m.b.tables.Membership),
		Key:       membershipKey(uid, chatID),
	})
	if err != nil {
		return fmt.Errorf("remove membership %s/%s: %w", uid, chatID, err)
	}
	return nil
}

func (m membershipIndex) Chats(ctx context.Context, uid string) ([]string, error) {
	var ids []string
	var startKey map[string]types.AttributeValue
	for {
		out, err := m.b.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(m.b.tables.Membership),
			KeyConditionExpression: aws.String("uid = :u"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":u": &types.AttributeValueMemberS{Value: uid},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query membership %s: %w", uid, err)
		}
		var recs []membershipRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &recs); err != nil {
			return nil, fmt.Errorf("unmarshal membership %s: %w", uid, remote.ErrMalformedRecord)
		}
		for _, r := range recs {
			ids = append(ids, r.ChatID)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return ids, nil
}

func (m membershipIndex) Subscribe(uid string) (<-chan stream.Event[bool], *stream.Handle) {
	return m.b.watchMembership(uid)
}
