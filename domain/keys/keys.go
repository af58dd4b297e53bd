package keys

import (
	"strings"

	"github.com/bidhaus/goapi/domain"
)

const (
	// PfxHTTPCache prefixes cached http responses
	PfxHTTPCache = "httpCache"

	// PfxHealthCheck prefixes health probe scratch keys
	PfxHealthCheck = "healthcheck"
)

// CustomKey joins key components with the specified delimiter
func CustomKey(delimiter string, components ...string) string {
	return strings.Join(components, delimiter)
}

// RedisKey joins redis key components with ':'
func RedisKey(components ...string) string {
	return CustomKey(":", components...)
}

// AuctionBidLock serializes bid-path mutation per auction
func AuctionBidLock(auctionId domain.AuctionId) string {
	return RedisKey("auction", "bid", string(auctionId))
}

// AuctionBuyNowLock guards the buy-now saga entry per auction
func AuctionBuyNowLock(auctionId domain.AuctionId) string {
	return RedisKey("auction", "buynow", string(auctionId))
}

// WalletOpLock serializes wallet commands per user
func WalletOpLock(userId domain.UserId) string {
	return RedisKey("wallet", "op", string(userId))
}

// GetPrefix extracts the leading components of a key for metric tagging
func GetPrefix(key string) string {
	s := strings.Split(key, ":")
	if len(s) > 2 {
		return strings.Join([]string{s[0], s[1]}, ":")
	} else if len(s) > 1 {
		return s[0]
	}
	return ""
}
