// Package dynamo implements the remote interfaces on DynamoDB. Unread
// counters use expression-based atomic updates, membership is a
// uid/chatId keyed table, and subscriptions are poll-and-diff watchers
// emitting the same stream events as the in-memory backend.
package dynamo

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/matheus3301/sendme/internal/remote"
	"go.uber.org/zap"
)

const defaultPollInterval = 2 * time.Second

// Tables names the DynamoDB tables the backend reads and writes.
type Tables struct {
	Profiles   string
	Chats      string
	Messages   string
	Membership string
}

// Backend holds the DynamoDB client and table configuration. The remote
// interfaces are exposed as views, mirroring the memory backend.
type Backend struct {
	client       *dynamodb.Client
	tables       Tables
	logger       *zap.Logger
	pollInterval time.Duration
}

// NewClient loads the default AWS configuration for the region and builds a
// DynamoDB client.
func NewClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// New creates a backend over an existing client.
func New(client *dynamodb.Client, tables Tables, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		client:       client,
		tables:       tables,
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

// SetPollInterval overrides the watcher poll interval.
func (b *Backend) SetPollInterval(d time.Duration) { b.pollInterval = d }

// Profiles returns the ProfileStore view.
func (b *Backend) Profiles() remote.ProfileStore { return profileStore{b} }

// Chats returns the ChatStore view.
func (b *Backend) Chats() remote.ChatStore { return chatStore{b} }

// Membership returns the MembershipIndex view.
func (b *Backend) Membership() remote.MembershipIndex { return membershipIndex{b} }
