package tenant

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// WithDatabase returns template with its database name replaced by name.
// Both URL ("postgres://...") and keyword/value ("host=... dbname=...")
// forms are accepted; nothing but the database name changes.
func WithDatabase(template, name string) (string, error) {
	if name == "" {
		return "", errors.New("database name is required")
	}
	if isURL(template) {
		u, err := url.Parse(template)
		if err != nil {
			return "", fmt.Errorf("parse connection template: %w", err)
		}
		u.Path = "/" + name
		u.RawPath = ""
		return u.String(), nil
	}
	if strings.TrimSpace(template) == "" {
		return "", errors.New("connection template is empty")
	}
	return setKeyword(template, "dbname", name), nil
}

// WithCredential returns conn with its user and password replaced.
func WithCredential(conn, user, password string) (string, error) {
	if user == "" {
		return "", errors.New("credential user is required")
	}
	if isURL(conn) {
		u, err := url.Parse(conn)
		if err != nil {
			return "", fmt.Errorf("parse connection string: %w", err)
		}
		u.User = url.UserPassword(user, password)
		return u.String(), nil
	}
	out := setKeyword(conn, "user", user)
	return setKeyword(out, "password", password), nil
}

// DatabaseOf extracts the database name from a connection string.
func DatabaseOf(conn string) string {
	if isURL(conn) {
		u, err := url.Parse(conn)
		if err != nil {
			return ""
		}
		return strings.TrimPrefix(u.Path, "/")
	}
	for _, f := range strings.Fields(conn) {
		if v, ok := strings.CutPrefix(f, "dbname="); ok {
			return v
		}
	}
	return ""
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}

func setKeyword(conn, key, value string) string {
	fields := strings.Fields(conn)
	replaced := false
	for i, f := range fields {
		if strings.HasPrefix(f, key+"=") {
			fields[i] = key + "=" + value
			replaced = true
		}
	}
	if !replaced {
		fields = append(fields, key+"="+value)
	}
	return strings.Join(fields, " ")
}
