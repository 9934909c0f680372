package common

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
)

// ValidateBaseURL validates the Parser client's configured base URL and flags
// obvious local/test endpoints so they don't get promoted to production
// config by accident.
// Returns: (isValid, isTestURL, warnings, err)
func ValidateBaseURL(baseURL string, logger arbor.ILogger) (bool, bool, []string, error) {
	warnings := []string{}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return false, false, warnings, fmt.Errorf("invalid URL format: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false, false, warnings, fmt.Errorf("invalid URL scheme: %s (expected http or https)", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return false, false, warnings, fmt.Errorf("URL host is empty")
	}

	isTestURL := false
	host := strings.ToLower(parsedURL.Host)

	if strings.HasPrefix(host, "localhost") {
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("test URL detected: %s uses localhost", baseURL))
	}
	if strings.HasPrefix(host, "127.0.0.1") {
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("test URL detected: %s uses 127.0.0.1", baseURL))
	}
	if strings.HasPrefix(host, "0.0.0.0") {
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("test URL detected: %s uses 0.0.0.0", baseURL))
	}
	if strings.HasPrefix(host, "[::1]") {
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("test URL detected: %s uses IPv6 localhost", baseURL))
	}

	if isTestURL {
		logger.Debug().
			Str("base_url", baseURL).
			Strs("warnings", warnings).
			Msg("base URL validation: test URL detected")
	} else {
		logger.Debug().
			Str("base_url", baseURL).
			Msg("base URL validation: production URL")
	}

	return true, isTestURL, warnings, nil
}
