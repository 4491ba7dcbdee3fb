package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validate checks every constraint named in the configuration's external
// reference, plus the cross-field checks layered on top of it. It is called
// once at startup, after env-var overrides have been applied.
func (c Config) Validate() error {
	if err := c.HTTP.validate(); err != nil {
		return fmt.Errorf("config: http: %w", err)
	}
	if err := c.JWT.validate(); err != nil {
		return fmt.Errorf("config: jwt: %w", err)
	}
	if err := c.Opencast.validate(c.HTTP.OnAllow); err != nil {
		return fmt.Errorf("config: opencast: %w", err)
	}
	return nil
}

func (h HTTPConfig) validate() error {
	if net.ParseIP(h.Address) == nil {
		return fmt.Errorf("address %q is not a valid IP", h.Address)
	}
	if h.ShutdownTimeout.Duration <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if h.OnAllow != "empty" && h.OnAllow != "file" && !strings.HasPrefix(h.OnAllow, "x-accel-redirect:") {
		return fmt.Errorf("on_allow %q must be \"empty\", \"file\", or \"x-accel-redirect:<url-path>\"", h.OnAllow)
	}
	if h.OnDeny != "empty" && !strings.HasPrefix(h.OnDeny, "x-accel-redirect:") {
		return fmt.Errorf("on_deny %q must be \"empty\" or \"x-accel-redirect:<url-path>\"", h.OnDeny)
	}
	for _, origin := range h.CORSAllowedOrigins {
		if !validOriginURL(origin) {
			return fmt.Errorf("cors_allowed_origins: %q is not a bare scheme+authority origin", origin)
		}
	}
	if len(h.JWTSources) == 0 {
		return fmt.Errorf("jwt_sources must be non-empty")
	}
	for i, src := range h.JWTSources {
		if (src.Query == "") == (src.Header == "") {
			return fmt.Errorf("jwt_sources[%d] must set exactly one of query or header", i)
		}
	}
	return nil
}

func (j JWTConfig) validate() error {
	if len(j.TrustedKeys) == 0 {
		return fmt.Errorf("trusted_keys must be non-empty")
	}
	seen := make(map[string]struct{}, len(j.TrustedKeys))
	for _, raw := range j.TrustedKeys {
		if _, dup := seen[raw]; dup {
			return fmt.Errorf("trusted_keys: duplicate URL %q", raw)
		}
		seen[raw] = struct{}{}
		if err := validKeySourceURL(raw); err != nil {
			return fmt.Errorf("trusted_keys: %q: %w", raw, err)
		}
	}
	if j.AllowedClockSkew.Duration < 0 {
		return fmt.Errorf("allowed_clock_skew must not be negative")
	}
	if j.BackgroundKeyRefresh {
		if j.KeyCacheDuration.Duration < 6*time.Second {
			return fmt.Errorf("key_cache_duration must be at least 6s when background_key_refresh is true")
		}
		if j.KeyCacheDuration.Duration < 2*LeadTime {
			return fmt.Errorf("key_cache_duration must be at least twice the background refresh lead time (%s)", LeadTime)
		}
	}
	return nil
}

func (o OpencastConfig) validate(onAllow string) error {
	if o.Fallback != "" && o.Fallback != "none" && o.Fallback != "head" && o.Fallback != "get" {
		return fmt.Errorf("fallback %q must be one of none, head, get", o.Fallback)
	}
	if len(o.PathPrefixes) == 0 {
		return fmt.Errorf("path_prefixes must be non-empty")
	}
	seen := make(map[string]struct{}, len(o.PathPrefixes))
	for _, p := range o.PathPrefixes {
		if _, dup := seen[p]; dup {
			return fmt.Errorf("path_prefixes: duplicate %q", p)
		}
		seen[p] = struct{}{}
		if !strings.HasPrefix(p, "/") || strings.Contains(p, "//") {
			return fmt.Errorf("path_prefixes: %q is not a valid URL path", p)
		}
	}
	if onAllow == "file" && o.DownloadsPath == "" {
		return fmt.Errorf("downloads_path is required when http.on_allow is \"file\"")
	}
	return nil
}

// validKeySourceURL enforces jwt.trusted_keys' URL shape: HTTPS always
// allowed; HTTP allowed only against a loopback host; no userinfo, no
// fragment.
func validKeySourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.User != nil {
		return fmt.Errorf("must not carry user-info")
	}
	if u.Fragment != "" {
		return fmt.Errorf("must not carry a fragment")
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopbackHTTP(u) {
			return nil
		}
		return fmt.Errorf("plain http is only allowed against a loopback host")
	default:
		return fmt.Errorf("scheme must be https (or http for loopback), got %q", u.Scheme)
	}
}

func isLoopbackHTTP(u *url.URL) bool {
	host := u.Hostname()
	return host == "localhost" || net.ParseIP(host).IsLoopback()
}

// validOriginURL enforces http.cors_allowed_origins' shape: scheme and
// authority only, scheme in {http, https}.
func validOriginURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" {
		return false
	}
	if u.Path != "" && u.Path != "/" {
		return false
	}
	return u.RawQuery == "" && u.Fragment == "" && u.User == nil
}
