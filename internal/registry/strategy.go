package registry

import "fmt"

// AcquisitionStrategy identifies one way of obtaining a credential from a
// provider. Not every provider supports every strategy.
type AcquisitionStrategy string

const (
	// StrategyDeviceCode is the RFC 8628 device flow: the user authorizes in
	// any browser with a short code while grantor polls the token endpoint.
	StrategyDeviceCode AcquisitionStrategy = "device_code"

	// StrategyCallback opens the system browser against the provider's
	// consent page and receives the authorization code on a short-lived
	// loopback listener.
	StrategyCallback AcquisitionStrategy = "authorization_code_callback"

	// StrategyAutomatedBrowser drives a dedicated automated browser through
	// the consent flow. Used when the system-browser path is blocked.
	StrategyAutomatedBrowser AcquisitionStrategy = "automated_browser"

	// StrategyLocalFileImport imports an existing credential file written by
	// the provider's own tooling.
	StrategyLocalFileImport AcquisitionStrategy = "local_file_import"

	// StrategyPastedSecret accepts an API key pasted by the user.
	StrategyPastedSecret AcquisitionStrategy = "pasted_secret"
)

// ParseStrategy converts a string into an AcquisitionStrategy.
func ParseStrategy(s string) (AcquisitionStrategy, error) {
	switch AcquisitionStrategy(s) {
	case StrategyDeviceCode, StrategyCallback, StrategyAutomatedBrowser,
		StrategyLocalFileImport, StrategyPastedSecret:
		return AcquisitionStrategy(s), nil
	default:
		return "", fmt.Errorf("unknown acquisition strategy: %q", s)
	}
}

// String returns the wire name of the strategy.
func (s AcquisitionStrategy) String() string {
	return string(s)
}
