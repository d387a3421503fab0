package gmail

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ajramos/mailsync/internal/services"
	"google.golang.org/api/googleapi"
)

// classify maps Gmail API status codes onto the service sentinel errors
func classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	var sentinel error
	switch {
	case gerr.Code == http.StatusUnauthorized:
		sentinel = services.ErrUnauthorized
	case gerr.Code == http.StatusForbidden:
		sentinel = services.ErrForbidden
	case gerr.Code == http.StatusNotFound:
		sentinel = services.ErrNotFound
	case gerr.Code == http.StatusTooManyRequests:
		sentinel = services.ErrRateLimited
	case gerr.Code >= 500:
		sentinel = services.ErrServiceUnavailable
	default:
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
