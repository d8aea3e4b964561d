package checkout

import (
	"fmt"
	"net/http"
	"strings"

	"giftshop/internal/model"
)

// ReportKind 结算汇总的类别。
type ReportKind string

const (
	ReportSuccess          ReportKind = "success"
	ReportPartial          ReportKind = "partial"
	ReportFailed           ReportKind = "failed"
	ReportPermissionDenied ReportKind = "permission_denied"
	ReportError            ReportKind = "error"
	ReportInvalid          ReportKind = "invalid"
)

const (
	MsgPermissionDenied = "no permission to order, please check your login state"
	MsgSubmissionError  = "an error occurred while submitting the order"
)

// Report 是一次结算给用户看的最终汇总。
type Report struct {
	CheckoutID         string                   `json:"checkoutId,omitempty"`
	Kind               ReportKind               `json:"kind"`
	Succeeded          int                      `json:"succeeded"`
	Failed             int                      `json:"failed"`
	InsufficientPoints bool                     `json:"insufficientPoints"`
	Message            string                   `json:"message"`
	Results            []model.SubmissionResult `json:"results,omitempty"`
}

// Summarize 在所有订单行都有结果之后计算汇总。
// 全部失败且每个失败都是 403 时报告无权限；其余情况 403 只计入失败数。
func Summarize(results []model.SubmissionResult) Report {
	if len(results) == 0 {
		return Report{Kind: ReportError, Message: MsgSubmissionError}
	}

	r := Report{Results: results}
	allForbidden := true
	for _, res := range results {
		if res.Success() {
			r.Succeeded++
			continue
		}
		r.Failed++
		if insufficientPoints(res) {
			r.InsufficientPoints = true
		}
		if res.Outcome != model.OutcomeDomainFailure || res.StatusCode != http.StatusForbidden {
			allForbidden = false
		}
	}

	switch {
	case r.Failed == 0:
		r.Kind = ReportSuccess
		r.Message = fmt.Sprintf("order completed: %d item(s)", r.Succeeded)
	case r.Succeeded == 0 && allForbidden:
		r.Kind = ReportPermissionDenied
		r.Message = MsgPermissionDenied
	case r.Succeeded == 0:
		r.Kind = ReportFailed
		r.Message = fmt.Sprintf("order failed: %d item(s)", r.Failed)
	default:
		r.Kind = ReportPartial
		r.Message = fmt.Sprintf("%d item(s) ordered, %d failed", r.Succeeded, r.Failed)
	}
	if r.InsufficientPoints {
		r.Message += " (insufficient points)"
	}
	return r
}

// insufficientPoints 判断上游拒绝是否因为积分不足。
func insufficientPoints(res model.SubmissionResult) bool {
	if res.Outcome != model.OutcomeDomainFailure {
		return false
	}
	if res.StatusCode == http.StatusPaymentRequired {
		return true
	}
	if res.ErrorDetail == nil {
		return false
	}
	if strings.EqualFold(res.ErrorDetail.Code, "INSUFFICIENT_POINTS") {
		return true
	}
	return strings.Contains(strings.ToLower(res.ErrorDetail.Message), "point")
}
