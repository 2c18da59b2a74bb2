package broadcast

import (
	"context"

	logx "github.com/abhijithasokan/cowin-slot-availability-telegram-bot/pkg/logx"
)

// Sender is the messaging platform's send primitive.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// dispatch sends the chunks, in order, to every subscriber in a segment.
// A failure for one subscriber aborts only that subscriber's remaining
// chunks; siblings and other segments are unaffected. Returns the subset of
// subscribers that received at least the first chunk.
func (s *Service) dispatch(ctx context.Context, chunks []string, userIDs []int64) []int64 {
	delivered := make([]int64, 0, len(userIDs))
	for _, uid := range userIDs {
		if ctx.Err() != nil {
			// Process is exiting; the uncommitted segments re-deliver next cycle.
			return delivered
		}
		if err := s.sendAll(ctx, uid, chunks); err != nil {
			s.log.Warn("delivery failed; skipping subscriber",
				logx.Int64("user_id", uid), logx.Err(err))
			continue
		}
		delivered = append(delivered, uid)
	}
	return delivered
}

func (s *Service) sendAll(ctx context.Context, uid int64, chunks []string) error {
	for _, chunk := range chunks {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := s.sender.SendText(ctx, uid, chunk); err != nil {
			return err
		}
	}
	return nil
}
