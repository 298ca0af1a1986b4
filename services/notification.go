package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
	"github.com/vnkhanh/course-tracker-backend/ws"
)

// Pusher delivers an event to a user's open sockets on this instance.
type Pusher interface {
	SendToUser(userID string, event ws.Event)
}

// NotificationService stores notifications and pushes them to connected
// clients. With a redis client the push is fanned out through pub/sub so that
// every instance reaches its own sockets.
type NotificationService struct {
	db      *gorm.DB
	pusher  Pusher
	rdb     *redis.Client
	channel string
	ttl     time.Duration
	log     zerolog.Logger
}

type NotificationOptions struct {
	Redis   *redis.Client
	Channel string
	TTL     time.Duration
}

func NewNotificationService(db *gorm.DB, pusher Pusher, opts NotificationOptions) *NotificationService {
	if opts.TTL <= 0 {
		opts.TTL = 30 * 24 * time.Hour
	}
	return &NotificationService{
		db:      db,
		pusher:  pusher,
		rdb:     opts.Redis,
		channel: opts.Channel,
		ttl:     opts.TTL,
		log:     componentLogger("notifications"),
	}
}

// Notify is best effort: failures are logged and swallowed. now is the
// instant of the operation that raised the notification.
func (s *NotificationService) Notify(ctx context.Context, n models.Notification, now time.Time) {
	n.CreatedAt = now
	n.ExpiresAt = now.Add(s.ttl)
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		s.log.Warn().Err(err).Str("user_id", n.UserID.String()).Str("type", n.Type).Msg("store notification")
		return
	}
	s.fanOut(ctx, n)
}

func (s *NotificationService) fanOut(ctx context.Context, n models.Notification) {
	if s.rdb == nil {
		s.push(n)
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal notification")
		return
	}
	if err := s.rdb.Publish(ctx, s.channel, data).Err(); err != nil {
		s.log.Warn().Err(err).Str("channel", s.channel).Msg("publish notification, delivering locally")
		s.push(n)
	}
}

func (s *NotificationService) push(n models.Notification) {
	if s.pusher == nil {
		return
	}
	s.pusher.SendToUser(n.UserID.String(), ws.Event{Type: "notification", Data: n})
}

// Subscribe relays notifications published by any instance to this
// instance's sockets until ctx is done. It is a no-op without redis.
func (s *NotificationService) Subscribe(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer sub.Close()

	ch := sub.Channel()
	s.log.Info().Str("channel", s.channel).Msg("notification relay started")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var n models.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				s.log.Warn().Err(err).Msg("decode relayed notification")
				continue
			}
			s.push(n)
		}
	}
}

func (s *NotificationService) List(ctx context.Context, u models.User, unreadOnly bool, now time.Time) ([]models.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ? AND expires_at > ?", u.ID, now)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	list := []models.Notification{}
	if err := q.Order("created_at DESC").Limit(100).Find(&list).Error; err != nil {
		return nil, storeErr(err, "list notifications", "notification")
	}
	return list, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, u models.User, now time.Time) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ? AND expires_at > ?", u.ID, false, now).
		Count(&n).Error; err != nil {
		return 0, storeErr(err, "count notifications", "notification")
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, u models.User, id uuid.UUID, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, u.ID).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if res.Error != nil {
		return storeErr(res.Error, "mark notification read", "notification")
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("notification")
	}
	return nil
}

// CleanupExpired deletes notifications whose expiry has passed.
func (s *NotificationService) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.Notification{})
	if res.Error != nil {
		return 0, storeErr(res.Error, "delete expired notifications", "notification")
	}
	return res.RowsAffected, nil
}
