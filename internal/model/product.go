package model

import "fmt"

// ProductDetail 商品详情，按商品 ID 拉取并缓存。
type ProductDetail struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
	Price    int64  `json:"price"` // 单位：원
}

// Validate 在边界处校验上游返回的商品详情。
func (p ProductDetail) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("product id is required")
	}
	if p.Price < 0 {
		return fmt.Errorf("product price must be >= 0")
	}
	return nil
}

// ProductOption 商品选项；Price 为空时按商品价计价。
type ProductOption struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price *int64 `json:"price,omitempty"`
}

// Category 首页分类。
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	ImageURL    string `json:"imageUrl"`
}

// WishlistItem 账户页的心愿单条目。
type WishlistItem struct {
	WishID          int64  `json:"wishId"`
	ProductID       int64  `json:"productId"`
	ProductName     string `json:"productName"`
	ProductPrice    int64  `json:"productPrice"`
	ProductImageURL string `json:"productImageUrl"`
}

// MemberPoints 当前会员的积分余额。
type MemberPoints struct {
	Point int64 `json:"point"`
}

func (m MemberPoints) Validate() error {
	if m.Point < 0 {
		return fmt.Errorf("point must be >= 0")
	}
	return nil
}
