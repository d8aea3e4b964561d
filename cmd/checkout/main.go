package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"giftshop/internal/checkout"
	"giftshop/internal/draft"
	"giftshop/internal/endpoint"
	"giftshop/internal/model"

	"github.com/sirupsen/logrus"
)

const cliSession = "cli"

// 直接对上游下单 API 跑一次结算，不经过 BFF：
//
//	checkout -base http://localhost:8081 -token xxx -message "happy birthday" -items 1:2,3:1
func main() {
	baseURL := flag.String("base", "http://localhost:8081", "upstream order api base url")
	token := flag.String("token", os.Getenv("GIFTSHOP_TOKEN"), "bearer token (defaults to $GIFTSHOP_TOKEN)")
	message := flag.String("message", "", "gift message sent with every line")
	items := flag.String("items", "", "comma separated optionId:quantity pairs")
	receipt := flag.String("receipt", "", "cash receipt number; empty means no receipt")
	concurrency := flag.Int("c", 4, "max lines in flight")
	timeout := flag.Duration("timeout", 0, "overall timeout, 0 means none")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}

	lines, err := parseItems(*items)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid -items:", err)
		os.Exit(2)
	}

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	store := draft.NewMemoryStore()
	if err := store.Set(ctx, cliSession, lines); err != nil {
		fmt.Fprintln(os.Stderr, "invalid -items:", err)
		os.Exit(2)
	}

	form := model.OrderFormState{
		HasCashReceipt:    *receipt != "",
		CashReceiptNumber: *receipt,
		Message:           *message,
	}

	orch := checkout.NewOrchestrator(endpoint.Static(*baseURL), store, checkout.Options{
		HTTPClient:  &http.Client{},
		MaxInFlight: *concurrency,
	})

	start := time.Now()
	report, err := orch.Checkout(ctx, cliSession, *token, form)
	var ve *checkout.ValidationError
	if errors.As(err, &ve) {
		fmt.Fprintln(os.Stderr, "form rejected:", ve.Message)
		os.Exit(2)
	}

	printSummary(report, time.Since(start))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	if report.Kind != checkout.ReportSuccess {
		os.Exit(1)
	}
}

// parseItems 解析 "1:2,3:1"，数量缺省为 1。
func parseItems(raw string) ([]model.OrderLineDraft, error) {
	var out []model.OrderLineDraft
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idStr, qtyStr, hasQty := strings.Cut(part, ":")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("option id %q", idStr)
		}
		qty := 1
		if hasQty {
			if qty, err = strconv.Atoi(qtyStr); err != nil {
				return nil, fmt.Errorf("quantity %q", qtyStr)
			}
		}
		out = append(out, model.OrderLineDraft{OptionID: id, Quantity: qty})
	}
	if len(out) == 0 {
		return nil, errors.New("at least one item is required")
	}
	return out, nil
}

// printSummary 输出汇总和状态码分布。
func printSummary(r checkout.Report, dur time.Duration) {
	fmt.Printf("[%s] %s (checkout=%s, %s)\n", r.Kind, r.Message, r.CheckoutID, dur.Round(time.Millisecond))

	count := map[int]int{}
	transport := 0
	for _, res := range r.Results {
		if res.Outcome == model.OutcomeTransportFailure {
			transport++
			fmt.Printf("  option=%d qty=%d -> %s\n", res.OptionID, res.Quantity, res.Err)
			continue
		}
		count[res.StatusCode]++
		if res.ErrorDetail != nil {
			fmt.Printf("  option=%d qty=%d -> %d %s %s\n", res.OptionID, res.Quantity, res.StatusCode, res.ErrorDetail.Code, res.ErrorDetail.Message)
		}
	}

	codes := make([]int, 0, len(count))
	for code := range count {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Println("http status summary:")
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, count[code])
	}
	if transport > 0 {
		fmt.Printf("  errors -> %d\n", transport)
	}
}
