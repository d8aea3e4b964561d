package checkout

import (
	"regexp"
	"unicode/utf8"

	"giftshop/internal/model"
)

const maxMessageLength = 100

const (
	MsgCashReceiptRequired = "cash receipt number required"
	MsgCashReceiptNumeric  = "cash receipt number must be numeric"
	MsgMessageRequired     = "message required"
	MsgMessageTooLong      = "message must be ≤100 characters"
)

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// ValidationResult 表单校验结果；IsValid 为 false 时 ErrorMessage 给用户看。
type ValidationResult struct {
	IsValid      bool   `json:"isValid"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Validate 按顺序检查表单，第一条失败的规则生效。纯函数。
func Validate(form model.OrderFormState) ValidationResult {
	if form.HasCashReceipt {
		if form.CashReceiptNumber == "" {
			return invalid(MsgCashReceiptRequired)
		}
		if !digitsOnly.MatchString(form.CashReceiptNumber) {
			return invalid(MsgCashReceiptNumeric)
		}
	}

	n := utf8.RuneCountInString(form.Message)
	if n < 1 {
		return invalid(MsgMessageRequired)
	}
	if n > maxMessageLength {
		return invalid(MsgMessageTooLong)
	}
	return ValidationResult{IsValid: true}
}

func invalid(msg string) ValidationResult {
	return ValidationResult{IsValid: false, ErrorMessage: msg}
}
