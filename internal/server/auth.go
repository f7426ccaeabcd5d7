package server

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// LoadKeys reads the API key file: one bcrypt hash per line, blank lines
// and #-comments ignored. The file is read once at startup.
func LoadKeys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open key file: %w", err)
	}
	defer f.Close()

	var hashes []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := bcrypt.Cost([]byte(line)); err != nil {
			return nil, fmt.Errorf("key file %s: line is not a bcrypt hash", path)
		}
		hashes = append(hashes, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	if len(hashes) == 0 {
		return nil, fmt.Errorf("key file %s contains no keys", path)
	}
	return hashes, nil
}

// APIKeyAuth verifies the X-API-Key header against the loaded hashes.
func APIKeyAuth(hashes []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get("X-API-Key")
			if key == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing API key")
			}
			for _, h := range hashes {
				if bcrypt.CompareHashAndPassword([]byte(h), []byte(key)) == nil {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
		}
	}
}
