package reservation

import (
	"context"
	"time"
)

// EventType 生命周期事件标签。
type EventType string

const (
	EventCreated   EventType = "CREATED"
	EventConfirmed EventType = "CONFIRMED"
	EventPickedUp  EventType = "PICKED_UP"
	EventFinalized EventType = "FINALIZED"
	EventUpdated   EventType = "UPDATED"
	EventDeleted   EventType = "DELETED"
	EventExpired   EventType = "EXPIRED"
)

// Event 每次状态流转发布一条，携带完整预订快照。
// 至少一次投递；消费方需要容忍重复。
type Event struct {
	Type        EventType   `json:"type"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Reservation Reservation `json:"reservation"`
}

// Publisher 事件出口。发布失败由调用方记日志后吞掉，
// 绝不回滚已完成的状态变更。
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// NopPublisher 测试/降级用的空实现。
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, evt Event) error { return nil }
