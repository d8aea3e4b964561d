package model

import "encoding/json"

// Outcome 描述单个订单行的提交结果。
type Outcome int

const (
	OutcomeSuccess          Outcome = iota // 2xx
	OutcomeDomainFailure                   // 上游拒绝（4xx 等），例如积分不足
	OutcomeTransportFailure                // 请求没有到达或没有返回
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDomainFailure:
		return "domain_failure"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// ErrorDetail 上游错误体，字段都可能缺失。
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SubmissionResult 每个提交的订单行对应一条，创建后不再修改。
type SubmissionResult struct {
	OptionID    int64           `json:"optionId"`
	Quantity    int             `json:"quantity"`
	Outcome     Outcome         `json:"outcome"`
	StatusCode  int             `json:"statusCode,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	ErrorDetail *ErrorDetail    `json:"errorDetail,omitempty"`
	Err         string          `json:"error,omitempty"`
}

func (r SubmissionResult) Success() bool { return r.Outcome == OutcomeSuccess }
