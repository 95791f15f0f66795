package service

import (
	"errors"
	"testing"

	"incentive/internal/infrastructure/mq"
	"incentive/internal/model"
	"incentive/internal/testutil"

	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
)

func TestNotifierPublishesToKafka(t *testing.T) {
	db := testutil.NewDB(t)
	producer := mocks.NewSyncProducer(t, mq.ProducerConfig())
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()

	n := NewNotifier(db, producer, "points-notification")
	n.Dispatch(
		newEvent(EventFormApproved, 1, map[string]interface{}{"form_id": 10}),
		newEvent(EventReferralBonus, 2, map[string]interface{}{"points": 1500}),
	)
	n.Wait()

	require.NoError(t, producer.Close())
	require.Equal(t, int64(0), countRows(t, db, &model.OutboxMessage{}, "1 = 1"))
}

func TestNotifierFallsBackToOutbox(t *testing.T) {
	db := testutil.NewDB(t)
	producer := mocks.NewSyncProducer(t, mq.ProducerConfig())
	producer.ExpectSendMessageAndFail(errors.New("broker unavailable"))

	n := NewNotifier(db, producer, "points-notification")
	evt := newEvent(EventRedemptionCreated, 3, map[string]interface{}{"redemption_id": 7})
	n.Dispatch(evt)
	n.Wait()
	require.NoError(t, producer.Close())

	var msg model.OutboxMessage
	require.NoError(t, db.Where("event_id = ?", evt.ID).First(&msg).Error)
	require.Equal(t, model.OutboxStatusPending, msg.Status)
	require.Equal(t, EventRedemptionCreated, msg.EventType)
	require.Contains(t, msg.LastError, "broker unavailable")
	require.Contains(t, msg.Payload, `"redemption_id":7`)
}

func TestNotifierWithoutProducer(t *testing.T) {
	f := newFixture(t, nil, nil)
	user := testutil.CreateUser(t, f.db, "uma", nil)
	testutil.SeedPoints(t, f.db, user.ID, 100)

	_, err := NewAccountService(f.deps).Adjust(testCtx, &AdjustRequest{UserID: user.ID, Delta: 5, Description: "bonus"})
	require.NoError(t, err)
	f.notifier.Wait()

	require.Equal(t, int64(1), countRows(t, f.db, &model.OutboxMessage{}, "event_type = ?", EventPointsAdjusted))
}

func TestNilNotifierIsNoop(t *testing.T) {
	var n *Notifier
	n.Dispatch(newEvent(EventFormRejected, 1, nil))
	n.Wait()
}
