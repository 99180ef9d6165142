package adminapi

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/research-mcp/pkg/corerr"
)

var (
	errMissingNamespace = errors.New("namespace is required")
	errMissingUserID    = errors.New("userID is required")
)

type badRequestError struct{ err error }

func errBadRequest(err error) error { return &badRequestError{err: err} }
func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

// mapServiceError maps internal errors to HTTP error responses, mirroring
// the teacher's mapServiceError (pkg/api/errors.go) generalized to this
// server's corerr taxonomy.
func mapServiceError(err error) *echo.HTTPError {
	var badReq *badRequestError
	if errors.As(err, &badReq) {
		return echo.NewHTTPError(http.StatusBadRequest, badReq.Error())
	}

	switch corerr.KindOf(err) {
	case corerr.KindInvalidURL, corerr.KindDisallowedScheme, corerr.KindInputOutOfRange:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case corerr.KindSSRFBlocked:
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case corerr.KindTimeout:
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case corerr.KindRateLimited:
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case corerr.KindCircuitOpen:
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case corerr.KindUpstreamError, corerr.KindNetworkError:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	slog.Error("unexpected admin API error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
