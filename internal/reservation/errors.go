package reservation

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// 错误分类：NotFound / InvalidRequest / Conflict / WrongState / Upstream。
// 传输层据此映射 HTTP 状态码；Conflict 细分 code 便于调用方区分原因。
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUpstream       = errors.New("upstream failure")
)

// Conflict codes
const (
	ConflictVehicleUnavailable = "vehicle_unavailable"
	ConflictPendingExists      = "pending_reservation_exists"
	ConflictOverlapOnFinalize  = "overlap_on_finalize"
	ConflictScoreTooLow        = "insufficient_eligibility_score"
)

// ConflictError 资源冲突：无车可用、窗口重叠、重复未支付预订、信誉分不足。
// 冲突一律在任何副作用之前拒绝，绝不部分生效。
type ConflictError struct {
	Code   string
	Detail string
}

func (e *ConflictError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("conflict: %s", e.Code)
	}
	return fmt.Sprintf("conflict: %s: %s", e.Code, e.Detail)
}

func NewConflict(code, detail string) *ConflictError {
	return &ConflictError{Code: code, Detail: detail}
}

// WrongStateError 非法状态下的流转请求（例如未取车就结算）。
type WrongStateError struct {
	ID   string
	From Status
	To   Status
}

func (e *WrongStateError) Error() string {
	return fmt.Sprintf("invalid reservation status transition: %s -> %s (id=%s)", e.From, e.To, e.ID)
}

// IsConflict 判断错误是否属于冲突类。
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsWrongState 判断错误是否属于非法流转类。
func IsWrongState(err error) bool {
	var we *WrongStateError
	return errors.As(err, &we)
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func upstreamf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUpstream, fmt.Sprintf(format, args...))
}

// notFound 把 gorm 的未命中归入本包的 NotFound 类，其余错误原样透传。
// catalog/fleet 的仓储返回裸 gorm 错误，跨包边界在这里统一归类。
func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return err
}
