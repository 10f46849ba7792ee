package reservation

import "time"

// 同一份内部记录的两种投影：客户视角与员工视角。
// 状态机只有一个事实来源（Reservation），投影只是裁剪字段。

// CustomerView 客户可见字段：不含员工 ID 与评价明细。
type CustomerView struct {
	ID                  string     `json:"id"`
	VehicleID           *string    `json:"vehicle_id,omitempty"`
	Status              Status     `json:"status"`
	CreationDate        time.Time  `json:"creation_date"`
	PlannedPickUpDate   time.Time  `json:"planned_pick_up_date"`
	PlannedDropOffDate  time.Time  `json:"planned_drop_off_date"`
	ActualPickUpDate    *time.Time `json:"actual_pick_up_date,omitempty"`
	ActualDropOffDate   *time.Time `json:"actual_drop_off_date,omitempty"`
	TotalAmountCents    int64      `json:"total_amount_cents"`
	PaymentToken        string     `json:"payment_token,omitempty"`
}

// StaffView 员工可见字段：全量，含缓冲还车时间、评价与操作人。
type StaffView struct {
	CustomerView
	CustomerID            string     `json:"customer_id"`
	BufferedDropOffDate   *time.Time `json:"buffered_drop_off_date,omitempty"`
	WasDeliveryLate       *bool      `json:"was_delivery_late,omitempty"`
	WasChargedFee         *bool      `json:"was_charged_fee,omitempty"`
	WasInvolvedInAccident *bool      `json:"was_involved_in_accident,omitempty"`
	DamageLevel           *int       `json:"damage_level,omitempty"`
	DirtinessLevel        *int       `json:"dirtiness_level,omitempty"`
	PickUpStaffID         string     `json:"pick_up_staff_id,omitempty"`
	DropOffStaffID        string     `json:"drop_off_staff_id,omitempty"`
	VehicleChangeStaffID  string     `json:"vehicle_change_staff_id,omitempty"`
}

func ToCustomerView(r *Reservation) CustomerView {
	return CustomerView{
		ID:                 r.ID,
		VehicleID:          r.VehicleID,
		Status:             r.Status,
		CreationDate:       r.CreationDate,
		PlannedPickUpDate:  r.PlannedPickUpDate,
		PlannedDropOffDate: r.PlannedDropOffDate,
		ActualPickUpDate:   r.ActualPickUpDate,
		ActualDropOffDate:  r.ActualDropOffDate,
		TotalAmountCents:   r.TotalAmountCents,
		PaymentToken:       r.PaymentToken,
	}
}

func ToStaffView(r *Reservation) StaffView {
	return StaffView{
		CustomerView:          ToCustomerView(r),
		CustomerID:            r.CustomerID,
		BufferedDropOffDate:   r.BufferedDropOffDate,
		WasDeliveryLate:       r.WasDeliveryLate,
		WasChargedFee:         r.WasChargedFee,
		WasInvolvedInAccident: r.WasInvolvedInAccident,
		DamageLevel:           r.DamageLevel,
		DirtinessLevel:        r.DirtinessLevel,
		PickUpStaffID:         r.PickUpStaffID,
		DropOffStaffID:        r.DropOffStaffID,
		VehicleChangeStaffID:  r.VehicleChangeStaffID,
	}
}
