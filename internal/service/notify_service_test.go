package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

type mockNotificationStore struct {
	existing    map[string]*models.Notification
	created     []*models.Notification
	createErr   error
	findErr     error
	markReadErr error
	unread      int
	markedAll   int64
}

func (m *mockNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	n.ID = "n-" + n.UserID
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotificationStore) FindByUserAndEventKey(ctx context.Context, userID, eventKey string) (*models.Notification, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if n, ok := m.existing[userID+"|"+eventKey]; ok {
		return n, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockNotificationStore) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	out := make([]models.Notification, 0, len(m.created))
	for _, n := range m.created {
		out = append(out, *n)
	}
	return out, nil
}

func (m *mockNotificationStore) CountUnread(ctx context.Context, agencyID, userID string) (int, error) {
	return m.unread, nil
}

func (m *mockNotificationStore) MarkRead(ctx context.Context, userID, id string) error {
	return m.markReadErr
}

func (m *mockNotificationStore) MarkAllRead(ctx context.Context, agencyID, userID string) (int64, error) {
	return m.markedAll, nil
}

type mockAdminDirectory struct {
	admins []string
	err    error
}

func (m *mockAdminDirectory) ListAdminIDs(ctx context.Context, agencyID string) ([]string, error) {
	return m.admins, m.err
}

type countingNotifyMetrics struct {
	created int
}

func (c *countingNotifyMetrics) RecordNotificationCreated() { c.created++ }

func eventKeyPtr(key string) *string { return &key }

func TestNotifyServiceTryCreateFirstDelivery(t *testing.T) {
	store := &mockNotificationStore{}
	metrics := &countingNotifyMetrics{}
	svc := NewNotifyService(store, &mockAdminDirectory{}, zap.NewNop(), WithNotifyMetrics(metrics))

	outcome, err := svc.TryCreate(context.Background(), &models.Notification{
		AgencyID: "agency-1",
		UserID:   "u1",
		Type:     models.NotificationNormal,
		Title:    "Quote follow-up needed",
		Message:  "Quote for \"Bali Honeymoon\" has had no activity for 4 days.",
		EventKey: eventKeyPtr("quote_followup:trip:t1:2026-03-01"),
	})
	require.NoError(t, err)
	assert.True(t, outcome.Created)
	assert.False(t, outcome.Duplicate)
	assert.NotEmpty(t, outcome.ID)
	require.Len(t, store.created, 1)
	assert.Equal(t, 1, metrics.created)
}

func TestNotifyServiceTryCreateFastPathDuplicate(t *testing.T) {
	key := "quote_followup:trip:t1:2026-03-01"
	store := &mockNotificationStore{
		existing: map[string]*models.Notification{
			"u1|" + key: {ID: "existing"},
		},
	}
	svc := NewNotifyService(store, &mockAdminDirectory{}, zap.NewNop())

	outcome, err := svc.TryCreate(context.Background(), &models.Notification{
		AgencyID: "agency-1",
		UserID:   "u1",
		Type:     models.NotificationNormal,
		Title:    "Quote follow-up needed",
		EventKey: eventKeyPtr(key),
	})
	require.NoError(t, err)
	assert.True(t, outcome.Duplicate)
	assert.False(t, outcome.Created)
	assert.Equal(t, "existing", outcome.ID)
	assert.Empty(t, store.created)
}

func TestNotifyServiceTryCreateAbsorbsUniqueRace(t *testing.T) {
	// The pre-check misses, the insert loses the race on the unique index.
	store := &mockNotificationStore{createErr: &pq.Error{Code: "23505"}}
	svc := NewNotifyService(store, &mockAdminDirectory{}, zap.NewNop())

	outcome, err := svc.TryCreate(context.Background(), &models.Notification{
		AgencyID: "agency-1",
		UserID:   "u1",
		Title:    "Payment deadline",
		EventKey: eventKeyPtr("payment_deadline:booking:b1:2026-03-01"),
	})
	require.NoError(t, err)
	assert.True(t, outcome.Duplicate)
	assert.False(t, outcome.Created)
}

func TestNotifyServiceFanOutDeduplicatesRecipients(t *testing.T) {
	store := &mockNotificationStore{}
	svc := NewNotifyService(store, &mockAdminDirectory{}, zap.NewNop())

	created, err := svc.FanOut(context.Background(), NotificationInput{
		AgencyID: "agency-1",
		Type:     models.NotificationUrgent,
		Title:    "Travel readiness gaps",
		Message:  "Trip departs tomorrow with 3 readiness gaps.",
		EventKey: "travel_readiness:trip:t1:2026-03-01",
	}, []string{"u1", "u2", "u1", ""})
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Len(t, store.created, 2)
}

func TestNotifyServiceNotifyAdminsMergesOwner(t *testing.T) {
	store := &mockNotificationStore{}
	admins := &mockAdminDirectory{admins: []string{"admin-1", "admin-2"}}
	svc := NewNotifyService(store, admins, zap.NewNop())

	created, err := svc.NotifyAdmins(context.Background(), NotificationInput{
		AgencyID: "agency-1",
		Type:     models.NotificationUrgent,
		Title:    "Payment deadline",
		EventKey: "payment_deadline:booking:b1:2026-03-01",
	}, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 3, created)
}

func TestNotifyServiceMarkReadNotFound(t *testing.T) {
	store := &mockNotificationStore{markReadErr: sql.ErrNoRows}
	svc := NewNotifyService(store, &mockAdminDirectory{}, zap.NewNop())

	err := svc.MarkRead(context.Background(), "u1", "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
