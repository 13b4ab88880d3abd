package chain

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// IsTransient reports whether err is worth retrying: rate limits, timeouts,
// 5xx responses, dropped connections and JSON-RPC server-side codes.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if transientCode(rpcErr.ErrorCode()) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, terminalMessageTokens) {
		return false
	}
	return containsAny(lower, transientMessageTokens)
}

func transientCode(code int) bool {
	if code == -32603 || code == -32005 {
		return true
	}
	return code <= -32000 && code >= -32099
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"eof",
	"too many requests",
	"rate limit",
	"limit exceeded",
	"429",
	"502",
	"503",
	"504",
}

var terminalMessageTokens = []string{
	"invalid argument",
	"invalid params",
	"method not found",
	"parse error",
	"execution reverted",
	"query returned more than",
}
