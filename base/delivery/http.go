package delivery

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/service/query"
)

type JsonResponseStatus string

const (
	JsonResponseStatusSuccess JsonResponseStatus = "success"
	JsonResponseStatusFail    JsonResponseStatus = "fail"
)

type JsonResponse struct {
	Data   interface{}        `json:"data"`
	Status JsonResponseStatus `json:"status"`
	Code   string             `json:"code,omitempty"`
}

// MakeJsonResp writes data as a json envelope. When data is a domain error
// the status is overridden by the error's mapping and the error code is
// surfaced in the body.
func MakeJsonResp(c echo.Context, status int, data interface{}) error {
	code := ""
	if err, ok := data.(error); ok {
		if mapped := statusOf(err); mapped != 0 {
			status = mapped
		}
		var derr *domain.Err
		if errors.As(err, &derr) {
			code = derr.Code
		}
		data = err.Error()
	}

	if status >= 400 {
		return c.JSON(status, JsonResponse{data, JsonResponseStatusFail, code})
	}

	if status >= 200 && status < 300 {
		return c.JSON(status, JsonResponse{data, JsonResponseStatusSuccess, code})
	}

	return c.JSON(status, data)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound) || errors.Is(err, query.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBadParamInput) || errors.Is(err, domain.ErrAutoBidMaxTooLow):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrWalletBusy) || errors.Is(err, domain.ErrLockBusy) || errors.Is(err, domain.ErrLockTimeout):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrBuyNowConflict),
		errors.Is(err, domain.ErrBuyNowConflictPurchased),
		errors.Is(err, domain.ErrAutoBidExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAuctionNotLive),
		errors.Is(err, domain.ErrAuctionEnded),
		errors.Is(err, domain.ErrSelfBid),
		errors.Is(err, domain.ErrBidTooLow),
		errors.Is(err, domain.ErrRetractionWindowExpired),
		errors.Is(err, domain.ErrBidAlreadyRejected),
		errors.Is(err, domain.ErrAutoBidInactive),
		errors.Is(err, domain.ErrBuyNowUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotBidOwner):
		return http.StatusForbidden
	}
	return 0
}
