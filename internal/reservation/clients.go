package reservation

import "context"

// 下游协作方的抽象契约。实现在 internal/upstream（HTTP + 熔断 + 有界超时），
// 测试用假实现替换。任何下游失败都会使所属流转整体失败，不留半更新状态。

// PaymentRequest 支付请求创建结果。
type PaymentRequest struct {
	Token       string `json:"token"`
	ApprovalURL string `json:"approval_url"`
}

// PaymentRecord 支付记录。
type PaymentRecord struct {
	Token       string `json:"token"`
	Status      string `json:"status"` // created / approved / failed
	AmountCents int64  `json:"amount_cents"`
}

// PaymentStatusApproved 支付确认回调要求的记录状态。
const PaymentStatusApproved = "approved"

type PaymentClient interface {
	CreatePaymentRequest(ctx context.Context, reservationID string, amountCents int64, description string) (*PaymentRequest, error)
	GetRecordByToken(ctx context.Context, token string) (*PaymentRecord, error)
}

// TrackingClient 车辆遥测会话。两个调用都必须同步成功，
// 否则取车/结算流转不提交。
type TrackingClient interface {
	StartSession(ctx context.Context, vehicleID, reservationID, customerID string) error
	EndSession(ctx context.Context, vehicleID, reservationID, customerID string) error
}

// IdentityClient 客户信誉分读写。
type IdentityClient interface {
	GetScore(ctx context.Context, customerID string) (int, error)
	UpdateScore(ctx context.Context, customerID string, score int) error
}
