package processors

import (
	"fmt"
	"net/url"
)

// ValidateTargetURL rejects anything that is not an absolute https URL with a
// host. A failure here is a configuration problem on the endpoint, never a
// transient delivery error.
func ValidateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid target url %q: %w", raw, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("invalid target url %q: scheme must be https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid target url %q: missing host", raw)
	}
	return nil
}
