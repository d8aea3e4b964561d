package redis

import "fmt"

// DraftKey 会话草稿（订单行列表）键名。
func DraftKey(sessionID string) string {
	return fmt.Sprintf("giftshop:draft:%s", sessionID)
}

// CatalogCacheKey 商品/分类查询缓存键，path 为包含 baseURL 的完整请求地址。
func CatalogCacheKey(path string) string {
	return fmt.Sprintf("giftshop:catalog:%s", path)
}

// CheckoutLockKey 标记某会话正在结算，防止同一草稿被重复提交。
func CheckoutLockKey(sessionID string) string {
	return fmt.Sprintf("giftshop:checkout:lock:%s", sessionID)
}

// CheckoutStateKey 存储 checkout_id 的结算状态与汇总。
func CheckoutStateKey(checkoutID string) string {
	return fmt.Sprintf("giftshop:checkout:state:%s", checkoutID)
}

// RateLimitKey 结算接口限流键，优先按会话，缺失时按 IP。
func RateLimitKey(sessionID, clientIP string) string {
	if sessionID != "" {
		return fmt.Sprintf("giftshop:rate_limit:checkout:session:%s", sessionID)
	}
	return fmt.Sprintf("giftshop:rate_limit:checkout:ip:%s", clientIP)
}
