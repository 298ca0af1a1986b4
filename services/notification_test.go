package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

func TestNotification_NotifyStoresAndPushesLocally(t *testing.T) {
	db := newTestDB(t)
	pusher := &recordingPusher{}
	svc := NewNotificationService(db, pusher, NotificationOptions{TTL: time.Hour})
	alice := createUser(t, db, models.RoleStudent, "alice", "")
	bob := createUser(t, db, models.RoleStudent, "bob", "")

	now := day0
	svc.Notify(ctx, models.Notification{UserID: alice.ID, Title: "Graded", Message: "hw1", Type: models.NotifyGraded}, now)
	svc.Notify(ctx, models.Notification{UserID: alice.ID, Title: "Returned", Message: "hw1", Type: models.NotifyReturned}, now)
	svc.Notify(ctx, models.Notification{UserID: bob.ID, Title: "Assigned", Message: "hw2", Type: models.NotifyAssigned}, now)

	assert.Equal(t, 2, pusher.count(alice.ID.String()))
	assert.Equal(t, 1, pusher.count(bob.ID.String()))

	list, err := svc.List(ctx, alice, false, now)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, n := range list {
		assert.Equal(t, alice.ID, n.UserID)
		assert.True(t, now.Equal(n.CreatedAt), "stamped with the caller's clock")
		assert.True(t, now.Add(time.Hour).Equal(n.ExpiresAt))
	}

	unread, err := svc.UnreadCount(ctx, alice, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread)

	require.NoError(t, svc.MarkRead(ctx, alice, list[0].ID, now))
	unread, err = svc.UnreadCount(ctx, alice, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)

	onlyUnread, err := svc.List(ctx, alice, true, now)
	require.NoError(t, err)
	assert.Len(t, onlyUnread, 1)

	err = svc.MarkRead(ctx, bob, list[1].ID, now)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err), "cannot read someone else's notification")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(svc.MarkRead(ctx, alice, uuid.New(), now)))
}

func TestNotification_CleanupExpired(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotificationService(db, nil, NotificationOptions{TTL: time.Hour})
	alice := createUser(t, db, models.RoleStudent, "alice", "")

	svc.Notify(ctx, models.Notification{UserID: alice.ID, Title: "t", Message: "m"}, day0)

	n, err := svc.CleanupExpired(ctx, day0.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	later := day0.Add(2 * time.Hour)
	list, err := svc.List(ctx, alice, false, later)
	require.NoError(t, err)
	assert.Empty(t, list, "expired notifications are hidden before the sweep")

	n, err = svc.CleanupExpired(ctx, later)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestNotification_SubscribeWithoutRedisReturns(t *testing.T) {
	svc := NewNotificationService(newTestDB(t), nil, NotificationOptions{})
	done := make(chan struct{})
	go func() {
		svc.Subscribe(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Subscribe blocked without redis")
	}
}
