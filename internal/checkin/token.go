package checkin

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidToken is returned when a scanned payload holds no usable token.
var ErrInvalidToken = errors.New("invalid check-in token")

// ExtractToken normalises a scanned payload to the bare token.
//
// A payload is either the token itself or a URL carrying it in a "token"
// query parameter, e.g. https://host/student/scan?token=ABC123. Both forms
// give the same result. A URL without a token, an empty payload, or a bare
// token containing whitespace is an error.
func ExtractToken(payload string) (string, error) {
	p := strings.TrimSpace(payload)
	if p == "" {
		return "", fmt.Errorf("%w: empty payload", ErrInvalidToken)
	}

	if strings.Contains(p, "://") || strings.HasPrefix(p, "/") || strings.Contains(p, "?") {
		u, err := url.Parse(p)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		token := strings.TrimSpace(u.Query().Get("token"))
		if token == "" {
			return "", fmt.Errorf("%w: no token parameter in %q", ErrInvalidToken, p)
		}
		return token, nil
	}

	if strings.ContainsAny(p, " \t\r\n") {
		return "", fmt.Errorf("%w: token contains whitespace", ErrInvalidToken)
	}
	return p, nil
}
