package model

import "fmt"

// OrderLineDraft 会话中尚未提交的订单行，只由草稿存储持有。
type OrderLineDraft struct {
	ProductID int64  `json:"productId,omitempty"`
	OptionID  int64  `json:"optionId"`
	Quantity  int    `json:"quantity"`
	Message   string `json:"message"`
}

// Validate 做最小字段校验，防止脏草稿进入结算。
func (d OrderLineDraft) Validate() error {
	if d.OptionID <= 0 {
		return fmt.Errorf("optionId is required")
	}
	if d.Quantity < 1 {
		return fmt.Errorf("quantity must be >= 1")
	}
	return nil
}

// OrderFormState 结算表单的瞬时状态。
// HasCashReceipt 为 true 时 CashReceiptNumber 必须存在且只含数字。
type OrderFormState struct {
	OptionID          int64  `json:"optionId"`
	Quantity          int    `json:"quantity"`
	SenderID          int64  `json:"senderId"`
	ReceiverID        int64  `json:"receiverId"`
	HasCashReceipt    bool   `json:"hasCashReceipt"`
	CashReceiptNumber string `json:"cashReceiptNumber,omitempty"`
	Message           string `json:"message"`
}

// OrderRequest 是 POST /api/orders 的请求体，每个订单行一条。
type OrderRequest struct {
	OptionID int64  `json:"optionId"`
	Quantity int    `json:"quantity"`
	Message  string `json:"message"`
}
