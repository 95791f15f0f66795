package service

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"incentive/internal/infrastructure/mq"
	"incentive/internal/model"
	"incentive/internal/repository"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EventFormApproved       = "form_approved"
	EventFormRejected       = "form_rejected"
	EventRedemptionCreated  = "redemption_created"
	EventRedemptionApproved = "redemption_approved"
	EventRedemptionRejected = "redemption_rejected"
	EventMysteryBoxGranted  = "mystery_box_granted"
	EventReferralBonus      = "referral_bonus"
	EventCampaignBonus      = "campaign_bonus"
	EventFortuneWheelSpin   = "fortune_wheel_spin"
	EventMysteryBoxClaimed  = "mystery_box_claimed"
	EventPointsAdjusted     = "points_adjusted"
)

// Event 通知事件，由下游邮件服务消费
type Event struct {
	ID         string                 `json:"event_id"`
	Type       string                 `json:"event_type"`
	UserID     int64                  `json:"user_id"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func newEvent(eventType string, userID int64, data map[string]interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		Data:       data,
		OccurredAt: time.Now(),
	}
}

// ============================================================================
// 通知投递
// ============================================================================
//
// 【关键点】通知与积分事务完全解耦：
//   - 只在事务提交之后调用 Dispatch
//   - 异步投递到 Kafka，不阻塞请求
//   - 投递失败写入 outbox_message，由 OutboxSender 按重试上限补发
//   - 任何失败只记日志，不回滚也不影响已提交的积分变动
//
// ============================================================================

type Notifier struct {
	producer   sarama.SyncProducer
	outboxRepo *repository.OutboxRepository
	topic      string
	wg         sync.WaitGroup
}

// NewNotifier producer 为 nil 时事件直接进入 outbox
func NewNotifier(db *gorm.DB, producer sarama.SyncProducer, topic string) *Notifier {
	return &Notifier{
		producer:   producer,
		outboxRepo: repository.NewOutboxRepository(db),
		topic:      topic,
	}
}

func (n *Notifier) Dispatch(events ...Event) {
	if n == nil {
		return
	}
	for _, evt := range events {
		n.wg.Add(1)
		go func(evt Event) {
			defer n.wg.Done()
			n.deliver(evt)
		}(evt)
	}
}

// Wait 等待所有在途投递结束，关闭服务和测试时使用
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) deliver(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[Notifier] 序列化事件失败: id=%s, type=%s, err=%v", evt.ID, evt.Type, err)
		return
	}

	var sendErr error
	if n.producer != nil {
		sendErr = mq.SendMessage(n.producer, n.topic, evt.ID, string(payload))
		if sendErr == nil {
			return
		}
		log.Printf("[Notifier] 投递失败，转入 outbox: id=%s, type=%s, err=%v", evt.ID, evt.Type, sendErr)
	}

	msg := &model.OutboxMessage{
		EventID:   evt.ID,
		EventType: evt.Type,
		Topic:     n.topic,
		Payload:   string(payload),
		Status:    model.OutboxStatusPending,
	}
	if sendErr != nil {
		msg.LastError = sendErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.outboxRepo.Create(ctx, msg); err != nil {
		log.Printf("[Notifier] 写入 outbox 失败，通知丢弃: id=%s, type=%s, err=%v", evt.ID, evt.Type, err)
	}
}
