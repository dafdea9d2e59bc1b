package apierror

import "net/http"

// HTTPStatus maps a Code to the status the Controller's HTTP surface
// returns.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeOrchestratorFailed, CodeStoreFailed:
		return http.StatusInternalServerError
	case CodeTransient:
		return http.StatusServiceUnavailable
	case CodeReplayed:
		// Replayed only ever surfaces on the WS upgrade path as a close
		// code; an HTTP caller seeing it treated as a body response is
		// itself a programming error, but 401 is the closest fit.
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WSCloseCode maps a Code to the close code the Gateway sends on the
// WebSocket upgrade path.
func WSCloseCode(code Code) int {
	switch code {
	case CodeUnauthorized, CodeReplayed:
		return 1008
	case CodeNotFound, CodeOrchestratorFailed, CodeStoreFailed, CodeTransient:
		return 1011
	default:
		return 1011
	}
}
