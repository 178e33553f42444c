package timeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/sendme/internal/remote"
	"go.uber.org/zap"
)

// ErrEvicted is returned by send operations after the chat was evicted.
var ErrEvicted = errors.New("timeline evicted")

// Send queues a text message. The entry appears in the local sequence
// immediately as Pending and moves to Confirmed or Failed when the send
// pipeline acknowledges.
func (s *Synchronizer) Send(ctx context.Context, text string) (string, error) {
	return s.send(ctx, remote.Message{
		ID:        uuid.New().String(),
		Sender:    s.uid,
		Content:   text,
		Timestamp: time.Now().UnixMilli(),
	})
}

// SendImage uploads the image first, then queues a message carrying the
// resulting URL. A failed upload produces no timeline entry.
func (s *Synchronizer) SendImage(ctx context.Context, data []byte, contentType string) (string, error) {
	if s.images == nil {
		return "", errors.New("no image host configured")
	}
	url, err := s.images.Upload(ctx, data, contentType)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return s.send(ctx, remote.Message{
		ID:        uuid.New().String(),
		Sender:    s.uid,
		ImageURL:  url,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Synchronizer) send(ctx context.Context, m remote.Message) (string, error) {
	s.mu.Lock()
	if s.evicted {
		s.mu.Unlock()
		return "", ErrEvicted
	}
	s.insertLocked(m, StatePending)
	s.mu.Unlock()

	s.mirror(m, StatePending)
	s.publish("message.upserted", m.ID)

	if err := s.dispatch.Enqueue(ctx, s.chatID, &m); err != nil {
		s.setState(m.ID, StateFailed)
		return m.ID, fmt.Errorf("enqueue message: %w", err)
	}
	return m.ID, nil
}

// Retry puts a failed message back into the send pipeline. A message in any
// other state is left alone.
func (s *Synchronizer) Retry(ctx context.Context, msgID string) error {
	s.mu.Lock()
	var found bool
	for i := range s.seq {
		if s.seq[i].Message.ID == msgID {
			if s.seq[i].State != StateFailed {
				s.mu.Unlock()
				return fmt.Errorf("message %s is %s, not failed", msgID, s.seq[i].State)
			}
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return fmt.Errorf("message %s: %w", msgID, remote.ErrNotFound)
	}

	if err := s.dispatch.Retry(ctx, msgID); err != nil {
		return fmt.Errorf("retry message %s: %w", msgID, err)
	}
	s.setState(msgID, StatePending)
	return nil
}

func (s *Synchronizer) setState(msgID string, state SendState) {
	s.mu.Lock()
	for i := range s.seq {
		if s.seq[i].Message.ID == msgID {
			s.seq[i].State = state
			break
		}
	}
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.SetMessageState(s.chatID, msgID, state.String()); err != nil {
			s.logger.Warn("cache state update failed", zap.String("msg_id", msgID), zap.Error(err))
		}
	}
	s.publish("message.upserted", msgID)
}
