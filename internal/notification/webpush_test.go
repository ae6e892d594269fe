package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"medication-reminder-backend/config"
	"medication-reminder-backend/internal/store"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func response(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

var testOptions = &webpush.Options{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv", Subscriber: "mailto:ops@example.com"}

func expectSubscriptions(mock sqlmock.Sqlmock, userID string, endpoints ...string) {
	rows := sqlmock.NewRows([]string{"endpoint", "user_id", "p256dh", "auth", "created_at"})
	for _, e := range endpoints {
		rows.AddRow(e, userID, "test_p256dh", "test_auth", time.Now())
	}
	mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE user_id = \$1`).
		WithArgs(userID).
		WillReturnRows(rows)
}

func TestWebPush_Deliver(t *testing.T) {
	t.Run("sends notification for one subscription", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		wp := NewWebPush(store.NewGormStore(gormDB), testOptions, zap.NewNop())

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				var msg Message
				require.NoError(t, json.Unmarshal(payload, &msg))
				assert.Equal(t, "It's time to take Aspirin (09:00)", msg.Body)
				return response(http.StatusCreated), nil
			},
		}

		expectSubscriptions(mock, "user-1", "https://example.com/push")

		sent, err := wp.Deliver(context.Background(), "user-1", Message{Title: "t", Body: "It's time to take Aspirin (09:00)"})
		require.NoError(t, err)
		assert.Equal(t, 1, sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		wp := NewWebPush(store.NewGormStore(gormDB), testOptions, zap.NewNop())

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				if sub.Endpoint == "https://example.com/expired" {
					return response(http.StatusGone), nil
				}
				return response(http.StatusCreated), nil
			},
		}

		expectSubscriptions(mock, "user-1", "https://example.com/expired", "https://example.com/live")

		// Expect the delete operation
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		sent, err := wp.Deliver(context.Background(), "user-1", Message{Title: "t"})
		require.NoError(t, err)
		assert.Equal(t, 1, sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports failure when no subscription is reachable", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		wp := NewWebPush(store.NewGormStore(gormDB), testOptions, zap.NewNop())

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return nil, errors.New("connection refused")
			},
		}

		expectSubscriptions(mock, "user-1", "https://example.com/push")

		sent, err := wp.Deliver(context.Background(), "user-1", Message{Title: "t"})
		assert.Error(t, err)
		assert.Equal(t, 0, sent)
	})

	t.Run("no subscriptions is not an error", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		wp := NewWebPush(store.NewGormStore(gormDB), testOptions, zap.NewNop())
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				t.Fatal("nothing to send to")
				return nil, nil
			},
		}

		expectSubscriptions(mock, "user-2")

		sent, err := wp.Deliver(context.Background(), "user-2", Message{Title: "t"})
		require.NoError(t, err)
		assert.Equal(t, 0, sent)
	})

	t.Run("skips when vapid keys are missing", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		wp := NewWebPush(store.NewGormStore(gormDB), &webpush.Options{}, zap.NewNop())

		sent, err := wp.Deliver(context.Background(), "user-1", Message{Title: "t"})
		require.NoError(t, err)
		assert.Equal(t, 0, sent)
		assert.NoError(t, mock.ExpectationsWereMet(), "no queries issued")
	})
}

func TestOptions_BoundsEachSend(t *testing.T) {
	options := Options(config.PushConfig{PublicKey: "pub", PrivateKey: "priv", TTL: 60, Timeout: 3 * time.Second})

	client, ok := options.HTTPClient.(*http.Client)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, client.Timeout)
	assert.Equal(t, 60, options.TTL)
}
