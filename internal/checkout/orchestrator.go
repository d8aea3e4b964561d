// Package checkout 负责结算：表单校验、逐行提交订单并汇总部分成功/失败。
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"giftshop/internal/draft"
	"giftshop/internal/endpoint"
	"giftshop/internal/model"
	"giftshop/internal/queue"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventSink 接收结算完成事件（outbox）。
type EventSink interface {
	Append(ctx context.Context, ev queue.CheckoutEvent) error
}

type Options struct {
	// HTTPClient 为空时使用不设超时的 client，只依赖传输层默认值。
	HTTPClient  *http.Client
	MaxInFlight int
	Events      EventSink
}

// Orchestrator 从草稿存储读取订单行，每行一次 POST /api/orders，全部完成后汇总。
// 不重试、不回滚已成功的订单行。
type Orchestrator struct {
	http        *http.Client
	resolver    endpoint.Resolver
	drafts      draft.Store
	events      EventSink
	maxInFlight int
	newID       func() string
}

func NewOrchestrator(resolver endpoint.Resolver, drafts draft.Store, opts Options) *Orchestrator {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 4
	}
	return &Orchestrator{
		http:        opts.HTTPClient,
		resolver:    resolver,
		drafts:      drafts,
		events:      opts.Events,
		maxInFlight: opts.MaxInFlight,
		newID:       uuid.NewString,
	}
}

// Checkout 执行一次完整结算。返回的 Report 总是可以直接展示；error 仅说明提交前就失败的原因。
func (o *Orchestrator) Checkout(ctx context.Context, sessionID, token string, form model.OrderFormState) (Report, error) {
	return o.CheckoutWithID(ctx, o.newID(), sessionID, token, form)
}

// CheckoutWithID 同 Checkout，checkout_id 由调用方预先分配（用作会话锁的值和状态 key）。
func (o *Orchestrator) CheckoutWithID(ctx context.Context, checkoutID, sessionID, token string, form model.OrderFormState) (Report, error) {
	log := logrus.WithFields(logrus.Fields{"checkout_id": checkoutID, "session_id": sessionID})

	if v := Validate(form); !v.IsValid {
		return Report{CheckoutID: checkoutID, Kind: ReportInvalid, Message: v.ErrorMessage}, &ValidationError{Message: v.ErrorMessage}
	}

	drafts, err := o.drafts.Get(ctx, sessionID)
	if err != nil {
		log.WithError(err).Error("read drafts")
		return errorReport(checkoutID), fmt.Errorf("read drafts: %w", err)
	}
	if len(drafts) == 0 {
		return errorReport(checkoutID), ErrNoDrafts
	}

	base, err := endpoint.Normalize(o.resolver.BaseURL(ctx))
	if err != nil {
		log.WithError(err).Error("resolve order endpoint")
		return errorReport(checkoutID), fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}

	results := o.Submit(ctx, base, token, form.Message, drafts)
	report := Summarize(results)
	report.CheckoutID = checkoutID
	observe(report)

	o.keepFailedDrafts(ctx, log, sessionID, drafts, results)

	log.WithFields(logrus.Fields{
		"kind":      report.Kind,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	}).Info("checkout finished")

	if o.events != nil {
		ev := queue.CheckoutEvent{
			CheckoutID: checkoutID,
			SessionID:  sessionID,
			Kind:       string(report.Kind),
			Succeeded:  report.Succeeded,
			Failed:     report.Failed,
			Message:    report.Message,
		}
		if err := o.events.Append(ctx, ev); err != nil {
			log.WithError(err).Warn("append checkout event")
		}
	}
	return report, nil
}

// keepFailedDrafts 成功的订单行从草稿中移除，只留下失败的，避免下次结算重复下单。
func (o *Orchestrator) keepFailedDrafts(ctx context.Context, log *logrus.Entry, sessionID string, drafts []model.OrderLineDraft, results []model.SubmissionResult) {
	remaining := make([]model.OrderLineDraft, 0, len(drafts))
	for i, res := range results {
		if !res.Success() {
			remaining = append(remaining, drafts[i])
		}
	}

	var err error
	if len(remaining) == 0 {
		err = o.drafts.Clear(ctx, sessionID)
	} else if len(remaining) < len(drafts) {
		err = o.drafts.Set(ctx, sessionID, remaining)
	}
	if err != nil {
		log.WithError(err).Warn("update drafts after checkout")
	}
}

// Submit 并发提交每个订单行（最多 maxInFlight 个同时在途），等待全部完成。
// 返回的结果与 drafts 按下标一一对应。
func (o *Orchestrator) Submit(ctx context.Context, base, token, message string, drafts []model.OrderLineDraft) []model.SubmissionResult {
	sem := make(chan struct{}, o.maxInFlight)
	var wg sync.WaitGroup
	results := make([]model.SubmissionResult, len(drafts))

	for i, d := range drafts {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, d model.OrderLineDraft) {
			defer wg.Done()
			defer func() { <-sem }()

			req := model.OrderRequest{OptionID: d.OptionID, Quantity: d.Quantity, Message: message}
			results[idx] = o.submitOne(ctx, base, token, req)
		}(i, d)
	}

	wg.Wait()
	return results
}

func (o *Orchestrator) submitOne(ctx context.Context, base, token string, body model.OrderRequest) model.SubmissionResult {
	res := model.SubmissionResult{OptionID: body.OptionID, Quantity: body.Quantity}

	b, err := json.Marshal(body)
	if err != nil {
		res.Outcome = model.OutcomeTransportFailure
		res.Err = err.Error()
		return res
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/orders", bytes.NewReader(b))
	if err != nil {
		res.Outcome = model.OutcomeTransportFailure
		res.Err = err.Error()
		return res
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		res.Outcome = model.OutcomeTransportFailure
		res.Err = err.Error()
		return res
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	res.StatusCode = resp.StatusCode
	if err != nil {
		res.Outcome = model.OutcomeTransportFailure
		res.Err = fmt.Sprintf("read body: %v", err)
		return res
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		res.Outcome = model.OutcomeSuccess
		if json.Valid(respBody) {
			res.Data = respBody
		}
		return res
	}

	res.Outcome = model.OutcomeDomainFailure
	var detail model.ErrorDetail
	if err := json.Unmarshal(respBody, &detail); err == nil && (detail.Code != "" || detail.Message != "") {
		res.ErrorDetail = &detail
	} else if len(respBody) > 0 {
		res.ErrorDetail = &model.ErrorDetail{Message: string(respBody)}
	}
	return res
}

func errorReport(checkoutID string) Report {
	return Report{CheckoutID: checkoutID, Kind: ReportError, Message: MsgSubmissionError}
}
