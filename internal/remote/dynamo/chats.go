package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/matheus3301/sendme/internal/remote"
)

type chatStore struct {
	b *Backend
}

func chatKey(chatID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"chatId": &types.AttributeValueMemberS{Value: chatID},
	}
}

func (s chatStore) Get(ctx context.Context, chatID string) (*remote.Chat, error) {
	out, err := s.b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.b.tables.Chats),
		Key:       chatKey(chatID),
	})
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", chatID, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec chatRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal chat %s: %w", chatID, remote.ErrMalformedRecord)
	}
	return rec.toChat(), nil
}

func (s chatStore) Create(ctx context.Context, c *remote.Chat) (string, error) {
	cp := c.Clone()
	cp.ID = uuid.New().String()
	item, err := attributevalue.MarshalMap(fromChat(cp))
	if err != nil {
		return "", fmt.Errorf("marshal chat: %w", err)
	}
	_, err = s.b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.b.tables.Chats),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(chatId)"),
	})
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}
	return cp.ID, nil
}

func (s chatStore) Delete(ctx context.Context, chatID string) error {
	if err := s.deleteTimeline(ctx, chatID); err != nil {
		return err
	}
	_, err := s.b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.b.tables.Chats),
		Key:       chatKey(chatID),
	})
	if err != nil {
		return fmt.Errorf("delete chat %s: %w", chatID, err)
	}
	return nil
}

// deleteTimeline removes the chat's message rows in batches of 25, the
// BatchWriteItem limit.
func (s chatStore) deleteTimeline(ctx context.Context, chatID string) error {
	msgs, err := s.timelineRecords(ctx, chatID)
	if err != nil {
		return err
	}
	for start := 0; start < len(msgs); start += 25 {
		end := min(start+25, len(msgs))
		requests := make([]types.WriteRequest, 0, end-start)
		for _, m := range msgs[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{
						"chatId": &types.AttributeValueMemberS{Value: m.ChatID},
						"sort":   &types.AttributeValueMemberS{Value: m.Sort},
					},
				},
			})
		}
		_, err := s.b.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				s.b.tables.Messages: requests,
			},
		})
		if err != nil {
			return fmt.Errorf("delete timeline %s: %w", chatID, err)
		}
	}
	return nil
}

// UpdateFields translates slash-separated field paths into a single
// UpdateItem expression. Nested paths ("participants/<uid>",
// "unreadCount/<uid>") become document paths; nil values become REMOVE
// clauses. DynamoDB applies the whole expression atomically.
func (s chatStore) UpdateFields(ctx context.Context, chatID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	var sets, removes []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	i := 0
	for path, val := range fields {
		expr, err := exprPath(path, i, names)
		if err != nil {
			return err
		}
		if val == nil {
			removes = append(removes, expr)
			i++
			continue
		}
		av, err := attributevalue.Marshal(val)
		if err != nil {
			return fmt.Errorf("field path %q: %w", path, err)
		}
		ref := ":v" + strconv.Itoa(i)
		values[ref] = av
		sets = append(sets, expr+" = "+ref)
		i++
	}

	var parts []string
	if len(sets) > 0 {
		parts = append(parts, "SET "+strings.Join(sets, ", "))
	}
	if len(removes) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(removes, ", "))
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.b.tables.Chats),
		Key:                      chatKey(chatID),
		UpdateExpression:         aws.String(strings.Join(parts, " ")),
		ConditionExpression:      aws.String("attribute_exists(chatId)"),
		ExpressionAttributeNames: names,
	}
	if len(values) > 0 {
		input.ExpressionAttributeValues = values
	}
	if _, err := s.b.client.UpdateItem(ctx, input); err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return fmt.Errorf("chat %s: %w", chatID, remote.ErrNotFound)
		}
		return fmt.Errorf("update chat %s: %w", chatID, err)
	}
	return nil
}

// exprPath converts "participants/uid" into "#n0.#n0s", registering the
// attribute names. Only one level of nesting is supported.
func exprPath(path string, i int, names map[string]string) (string, error) {
	parts := strings.SplitN(path, "/", 3)
	if len(parts) > 2 || parts[0] == "" {
		return "", fmt.Errorf("field path %q: %w", path, remote.ErrMalformedRecord)
	}
	top := "#n" + strconv.Itoa(i)
	names[top] = parts[0]
	if len(parts) == 1 {
		return top, nil
	}
	sub := "#n" + strconv.Itoa(i) + "s"
	names[sub] = parts[1]
	return top + "." + sub, nil
}

func (s chatStore) SetUnread(ctx context.Context, chatID, uid string, n int) error {
	_, err := s.b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.b.tables.Chats),
		Key:                 chatKey(chatID),
		UpdateExpression:    aws.String("SET #u.#uid = :n"),
		ConditionExpression: aws.String("attribute_exists(chatId)"),
		ExpressionAttributeNames: map[string]string{
			"#u":   "unreadCount",
			"#uid": uid,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberN{Value: strconv.Itoa(n)},
		},
	})
	if err != nil {
		return fmt.Errorf("set unread %s/%s: %w", chatID, uid, err)
	}
	return nil
}

// IncrementUnread relies on if_not_exists so an absent counter reads as
// zero; the UpdateItem is atomic under concurrent senders.
func (s chatStore) IncrementUnread(ctx context.Context, chatID, uid string, delta int) error {
	_, err := s.b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.b.tables.Chats),
		Key:                 chatKey(chatID),
		UpdateExpression:    aws.String("SET #u.#uid = if_not_exists(#u.#uid, :zero) + :d"),
		ConditionExpression: aws.String("attribute_exists(chatId)"),
		ExpressionAttributeNames: map[string]string{
			"#u":   "unreadCount",
			"#uid": uid,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":d":    &types.AttributeValueMemberN{Value: strconv.Itoa(delta)},
		},
	})
	if err != nil {
		return fmt.Errorf("increment unread %s/%s: %w", chatID, uid, err)
	}
	return nil
}

func (s chatStore) AppendMessage(ctx context.Context, chatID string, m *remote.Message) error {
	item, err := attributevalue.MarshalMap(fromMessage(chatID, m))
	if err != nil {
		return fmt.Errorf("marshal message %s: %w", m.ID, err)
	}
	_, err = s.b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.b.tables.Messages),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("append message %s: %w", m.ID, err)
	}
	return nil
}

func (s chatStore) Messages(ctx context.Context, chatID string) ([]remote.Message, error) {
	recs, err := s.timelineRecords(ctx, chatID)
	if err != nil {
		return nil, err
	}
	msgs := make([]remote.Message, 0, len(recs))
	for _, r := range recs {
		msgs = append(msgs, r.toMessage())
	}
	return msgs, nil
}

func (s chatStore) timelineRecords(ctx context.Context, chatID string) ([]messageRecord, error) {
	var recs []messageRecord
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.b.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.b.tables.Messages),
			KeyConditionExpression: aws.String("chatId = :c"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":c": &types.AttributeValueMemberS{Value: chatID},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query messages %s: %w", chatID, err)
		}
		var page []messageRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal messages %s: %w", chatID, remote.ErrMalformedRecord)
		}
		recs = append(recs, page...)
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return recs, nil
}
