// Package expiry resolves the expiry instant of a token from a provider response.
//
// Providers disagree on how expiry is reported. Some send an absolute
// expires_on, some a relative expires_in, and some only embed an exp claim in
// the returned JWTs. Resolve reconciles all three and never fails.
package expiry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/giantswarm/tokenkit/internal/autherr"
	"github.com/giantswarm/tokenkit/pkg/logging"
)

// DefaultLifetime is assumed when a response carries no usable expiry.
const DefaultLifetime = time.Hour

// Source names where a resolved expiry came from.
type Source string

const (
	SourceAbsolute Source = "expires_on"
	SourceRelative Source = "expires_in"
	SourceJWT      Source = "exp"
	SourceDefault  Source = "default"
)

// Result is the outcome of Resolve.
type Result struct {
	// Expiry is second precision and in UTC.
	Expiry time.Time
	Source Source
	// Defaulted is set when nothing in the response could be used and
	// DefaultLifetime was applied.
	Defaulted bool
}

// absoluteLayouts are the non-numeric expires_on formats seen in the wild,
// the last one from older App Service managed identity endpoints.
var absoluteLayouts = []string{
	time.RFC3339,
	"01/02/2006 15:04:05 -07:00",
	"01/02/2006 03:04:05 PM -07:00",
}

// Resolve computes the expiry of the token described by fields, a decoded
// token endpoint response, requested at requestedAt.
func Resolve(fields map[string]any, requestedAt time.Time) Result {
	var (
		primary    time.Time
		primarySrc Source
	)
	if t, ok := absolute(fields["expires_on"]); ok {
		primary, primarySrc = t, SourceAbsolute
	} else if secs, ok := number(fields["expires_in"]); ok {
		primary, primarySrc = requestedAt.Add(time.Duration(secs)*time.Second), SourceRelative
	}

	claimed, hasClaim := jwtExpiry(fields)

	switch {
	case !primary.IsZero() && hasClaim:
		if claimed.Before(primary) {
			return result(claimed, SourceJWT)
		}
		return result(primary, primarySrc)
	case !primary.IsZero():
		return result(primary, primarySrc)
	case hasClaim:
		return result(claimed, SourceJWT)
	}

	logging.Warn("Expiry", "%v; assuming %s from request time", autherr.ErrExpiryUnresolved, DefaultLifetime)
	r := result(requestedAt.Add(DefaultLifetime), SourceDefault)
	r.Defaulted = true
	return r
}

func result(t time.Time, src Source) Result {
	return Result{Expiry: time.Unix(t.Unix(), 0).UTC(), Source: src}
}

// jwtExpiry reads the exp claim of the access token, falling back to the ID token.
// Signatures are not verified.
func jwtExpiry(fields map[string]any) (time.Time, bool) {
	for _, key := range []string{"access_token", "id_token"} {
		raw, _ := fields[key].(string)
		if raw == "" {
			continue
		}
		if exp, ok := ClaimedExpiry(raw); ok {
			return exp, true
		}
	}
	return time.Time{}, false
}

// ClaimedExpiry decodes the payload of a JWT without verifying it and returns
// its exp claim.
func ClaimedExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func absolute(v any) (time.Time, bool) {
	if secs, ok := number(v); ok {
		if secs <= 0 {
			return time.Time{}, false
		}
		return time.Unix(secs, 0), true
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// number accepts the numeric shapes providers use: JSON numbers, json.Number
// and decimal strings.
func number(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}
