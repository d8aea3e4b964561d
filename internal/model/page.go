package model

import (
	"encoding/json"
	"fmt"
)

// Page 是上游分页接口的统一信封。
type Page[T any] struct {
	Content       []T   `json:"content"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
	Empty         bool  `json:"empty"`
}

// pageWire 用指针区分“缺失”和“零值”，只在解码时使用。
type pageWire[T any] struct {
	Content       *[]T  `json:"content"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
	First         bool  `json:"first"`
	Last          *bool `json:"last"`
	Empty         bool  `json:"empty"`
}

// DecodePage 解码分页信封，content 与 last 为必填字段。
func DecodePage[T any](data []byte) (Page[T], error) {
	var w pageWire[T]
	if err := json.Unmarshal(data, &w); err != nil {
		return Page[T]{}, fmt.Errorf("decode page: %w", err)
	}
	if w.Content == nil {
		return Page[T]{}, fmt.Errorf("decode page: content is required")
	}
	if w.Last == nil {
		return Page[T]{}, fmt.Errorf("decode page: last is required")
	}
	return Page[T]{
		Content:       *w.Content,
		Number:        w.Number,
		Size:          w.Size,
		TotalPages:    w.TotalPages,
		TotalElements: w.TotalElements,
		First:         w.First,
		Last:          *w.Last,
		Empty:         w.Empty,
	}, nil
}
