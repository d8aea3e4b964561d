package catalog

import (
	"context"
	"fmt"
	"net/http"

	"giftshop/internal/model"
)

// Wishlist 拉取账户心愿单的一页，按创建时间倒序。
func (c *Client) Wishlist(ctx context.Context, token string, page int) (model.Page[model.WishlistItem], error) {
	if token == "" {
		return model.Page[model.WishlistItem]{}, ErrUnauthorized
	}
	if page < 0 {
		page = 0
	}
	u := fmt.Sprintf("%s/api/wishes?page=%d&size=%d&sort=createdDate,desc", c.resolver.BaseURL(ctx), page, wishlistPageSize)
	body, err := c.get(ctx, u, token)
	if err != nil {
		return model.Page[model.WishlistItem]{}, fmt.Errorf("wishlist: %w", err)
	}
	return model.DecodePage[model.WishlistItem](body)
}

// DeleteWish 删除心愿单条目；不重试。
func (c *Client) DeleteWish(ctx context.Context, token string, wishID int64) error {
	if token == "" {
		return ErrUnauthorized
	}
	u := fmt.Sprintf("%s/api/wishes/%d", c.resolver.BaseURL(ctx), wishID)
	if _, err := c.do(ctx, http.MethodDelete, u, token); err != nil {
		return fmt.Errorf("delete wish %d: %w", wishID, err)
	}
	return nil
}
