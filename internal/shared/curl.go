// Utilities for importing browser session headers from a copied cURL command.
package shared

import (
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
)

var (
	curlHeaderRegex = regexp.MustCompile(`-H\s+'([^']+)'|-H\s+"([^"]+)"`)
	curlCookieRegex = regexp.MustCompile(`-b\s+'([^']+)'|-b\s+"([^"]+)"`)
)

// sessionCookies are the cookies that mark a signed-in browser session.
var sessionCookies = []string{"SAPISID", "__Secure-3PAPISID"}

// CurlHeaders represents parsed headers and cookies from a cURL command.
type CurlHeaders struct {
	Headers map[string]string
	Cookie  string
}

// ParseCurlFile reads a .sh file containing a cURL command and extracts headers.
func ParseCurlFile(filepath string) (*CurlHeaders, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read curl file: %w", err)
	}

	return ParseCurlCommand(string(content))
}

// ParseCurlCommand parses a cURL command string and extracts headers.
//
// A cookie passed with -b wins over a Cookie header.
func ParseCurlCommand(curlCmd string) (*CurlHeaders, error) {
	curlCmd = strings.ReplaceAll(curlCmd, "\\\n", " ")
	curlCmd = strings.ReplaceAll(curlCmd, "\\", "")

	headers := make(map[string]string)
	var headerCookie, cookie string

	for _, match := range curlHeaderRegex.FindAllStringSubmatch(curlCmd, -1) {
		key, value, ok := strings.Cut(firstGroup(match), ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		if strings.EqualFold(key, "cookie") {
			if headerCookie == "" {
				headerCookie = value
			}
			continue
		}
		headers[key] = value
	}

	if match := curlCookieRegex.FindStringSubmatch(curlCmd); match != nil {
		cookie = firstGroup(match)
	}
	if cookie == "" {
		cookie = headerCookie
	}

	if len(headers) == 0 && cookie == "" {
		return nil, fmt.Errorf("%w: no headers found in curl command", ErrInvalidInput)
	}

	return &CurlHeaders{Headers: headers, Cookie: cookie}, nil
}

func firstGroup(match []string) string {
	if match[1] != "" {
		return match[1]
	}
	return match[2]
}

// UserAgent returns the User-Agent header, matched case-insensitively.
func (c *CurlHeaders) UserAgent() string {
	for k, v := range c.Headers {
		if strings.EqualFold(k, "user-agent") {
			return v
		}
	}
	return ""
}

// CookieValue returns the value of the named cookie.
func (c *CurlHeaders) CookieValue(name string) string {
	cookies, err := http.ParseCookie(c.Cookie)
	if err != nil {
		return ""
	}
	for _, ck := range cookies {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// SignedIn reports whether the cookie carries a signed-in session.
func (c *CurlHeaders) SignedIn() bool {
	for _, name := range sessionCookies {
		if c.CookieValue(name) != "" {
			return true
		}
	}
	return false
}
