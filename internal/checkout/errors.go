package checkout

import "errors"

var (
	ErrNoDrafts      = errors.New("no drafts to submit")
	ErrInvalidTarget = errors.New("invalid order endpoint")
)

// ValidationError 表单在提交前被拒绝，不会发出任何请求。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Message }
