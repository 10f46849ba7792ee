package reservation

import (
	"fmt"
	"time"
)

// AllowTransition 定义预订状态机的允许流转关系。
// 任何流转都不可逆；EXPIRED 只能由过期扫描任务触发。
var AllowTransition = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusExpired},
	StatusConfirmed: {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusDelivered},
	// 终态：不允许从 DELIVERED / CANCELLED / EXPIRED 再流转
	StatusDelivered: {},
	StatusCancelled: {},
	StatusExpired:   {},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
func CanTransition(from, to Status) bool {
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyTransition 对预订应用状态变更，并维护关键时间字段。
// 仅做状态机合法性检查，业务前置条件（支付核验、重叠复核等）由 Service 保证。
func ApplyTransition(r *Reservation, to Status, now time.Time) error {
	if r == nil {
		return fmt.Errorf("reservation is nil")
	}
	from := r.Status
	if !CanTransition(from, to) {
		return &WrongStateError{ID: r.ID, From: from, To: to}
	}

	r.Status = to

	switch to {
	case StatusPickedUp:
		if r.ActualPickUpDate == nil {
			t := now
			r.ActualPickUpDate = &t
		}
	case StatusDelivered:
		if r.ActualDropOffDate == nil {
			t := now
			r.ActualDropOffDate = &t
		}
	}
	return nil
}
