package app

import (
	"context"
	"fmt"

	"github.com/matheus3301/sendme/internal/config"
	"github.com/matheus3301/sendme/internal/remote"
	"github.com/matheus3301/sendme/internal/remote/dynamo"
	"github.com/matheus3301/sendme/internal/remote/memory"
	"github.com/matheus3301/sendme/internal/remote/s3host"
	"go.uber.org/zap"
)

// Backend bundles the remote collaborators for the configured backend.
type Backend struct {
	Profiles   remote.ProfileStore
	Chats      remote.ChatStore
	Membership remote.MembershipIndex
	Images     remote.ImageHost
	Push       remote.PushRelay
}

func provideBackend(cfg *config.Profile, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		st := memory.New()
		return Backend{
			Profiles:   st.Profiles(),
			Chats:      st.Chats(),
			Membership: st.Membership(),
			Images:     memory.NewImageHost(),
			Push:       logRelay{logger},
		}, nil
	case config.BackendDynamo:
		ctx := context.Background()
		client, err := dynamo.NewClient(ctx, cfg.AWS.Region)
		if err != nil {
			return Backend{}, err
		}
		be := dynamo.New(client, dynamo.Tables{
			Profiles:   cfg.AWS.ProfilesTable,
			Chats:      cfg.AWS.ChatsTable,
			Messages:   cfg.AWS.MessagesTable,
			Membership: cfg.AWS.MembershipTable,
		}, logger)
		s3c, err := s3host.NewClient(ctx, cfg.AWS.Region)
		if err != nil {
			return Backend{}, err
		}
		return Backend{
			Profiles:   be.Profiles(),
			Chats:      be.Chats(),
			Membership: be.Membership(),
			Images:     s3host.New(s3c, cfg.AWS.ImageBucket, cfg.AWS.Region),
			Push:       logRelay{logger},
		}, nil
	default:
		return Backend{}, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// logRelay records notifications in the daemon log. Real delivery belongs to
// an external push service; the daemon only composes the payloads.
type logRelay struct {
	logger *zap.Logger
}

func (r logRelay) Notify(_ context.Context, n remote.Notification) error {
	r.logger.Info("push notification",
		zap.String("recipient", n.Recipient),
		zap.String("chat_id", n.ChatID),
		zap.Bool("is_group", n.IsGroup),
		zap.String("title", n.Title))
	return nil
}
