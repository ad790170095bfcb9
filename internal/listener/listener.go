// Package listener implements the single-shot local redirect endpoint of the
// authorization code flow.
package listener

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/giantswarm/tokenkit/internal/autherr"
	"github.com/giantswarm/tokenkit/pkg/logging"
)

// DefaultRedirectURI is used when no redirect URI is configured.
const DefaultRedirectURI = "http://localhost:1410/"

// Timeout bounds Wait when the caller's context has no deadline.
const Timeout = 10 * time.Minute

//go:embed templates/success.html
var successHTML string

//go:embed templates/error.html
var errorHTML string

var (
	successTemplate = template.Must(template.New("success").Funcs(sprig.HtmlFuncMap()).Parse(successHTML))
	errorTemplate   = template.Must(template.New("error").Funcs(sprig.HtmlFuncMap()).Parse(errorHTML))
)

// Result is the query of the redirect request.
type Result struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// IsError reports whether the provider redirected with an error.
func (r *Result) IsError() bool {
	return r.Error != ""
}

// Listener serves the redirect URI until the first matching request arrives.
type Listener struct {
	path        string
	redirectURI string
	server      *http.Server
	listener    net.Listener
	resultCh    chan *Result
	errorCh     chan error
	once        sync.Once
	stopOnce    sync.Once
	unwatch     func() bool
}

// Listen binds the host and port of redirectURI. Only plain http loopback style
// URIs can be served. A zero port picks a free one; RedirectURI reports the
// effective URI.
func Listen(ctx context.Context, redirectURI string) (*Listener, error) {
	if redirectURI == "" {
		redirectURI = DefaultRedirectURI
	}
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redirect URI %q: %v", autherr.ErrMissingListenerCapability, redirectURI, err)
	}
	if u.Scheme != "http" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: redirect URI %q cannot be served locally", autherr.ErrMissingListenerCapability, redirectURI)
	}

	host := u.Hostname()
	bindHost := host
	if host == "localhost" {
		bindHost = "127.0.0.1"
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(bindHost, port))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to bind %s:%s: %v", autherr.ErrMissingListenerCapability, bindHost, port, err)
	}

	boundPort := ln.Addr().(*net.TCPAddr).Port
	u.Host = net.JoinHostPort(host, fmt.Sprint(boundPort))
	if u.Path == "" {
		u.Path = "/"
	}

	l := &Listener{
		path:        u.Path,
		redirectURI: u.String(),
		listener:    ln,
		resultCh:    make(chan *Result, 1),
		errorCh:     make(chan error, 1),
	}

	l.server = &http.Server{
		Handler:           http.HandlerFunc(l.handle),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case l.errorCh <- err:
			default:
			}
		}
	}()

	l.unwatch = context.AfterFunc(ctx, l.shutdown)

	logging.Debug("Listener", "Waiting for redirect on %s", l.redirectURI)
	return l, nil
}

// RedirectURI is the URI the provider must redirect to.
func (l *Listener) RedirectURI() string {
	return l.redirectURI
}

// Wait blocks until the redirect arrives, the timeout passes or ctx is done.
// A non-empty expectedState must match the state of the redirect.
func (l *Listener) Wait(ctx context.Context, expectedState string) (*Result, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, Timeout)
		defer cancel()
	}

	select {
	case result := <-l.resultCh:
		if result.IsError() {
			desc := result.ErrorDescription
			if desc == "" {
				desc = "no description given"
			}
			return result, fmt.Errorf("%w: %s: %s", autherr.ErrAuthorizationDenied, result.Error, desc)
		}
		if expectedState != "" && result.State != expectedState {
			return result, fmt.Errorf("%w: state mismatch in redirect", autherr.ErrAuthorizationDenied)
		}
		if result.Code == "" {
			return result, fmt.Errorf("%w: redirect did not include an authorization code", autherr.ErrAuthorizationDenied)
		}
		return result, nil
	case err := <-l.errorCh:
		return nil, fmt.Errorf("redirect listener failed: %w", err)
	case <-ctx.Done():
		l.Stop()
		return nil, fmt.Errorf("timed out waiting for the browser login: %w", ctx.Err())
	}
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	if strings.TrimRight(r.URL.Path, "/") != strings.TrimRight(l.path, "/") {
		http.NotFound(w, r)
		return
	}

	var handled bool
	l.once.Do(func() {
		handled = true
		l.process(w, r)
	})
	if !handled {
		http.Error(w, "Redirect already processed", http.StatusBadRequest)
	}
}

func (l *Listener) process(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	result := &Result{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	tmpl := successTemplate
	data := map[string]string{}
	if result.IsError() {
		tmpl = errorTemplate
		data["Error"] = result.Error
		data["Description"] = result.ErrorDescription
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}

	select {
	case l.resultCh <- result:
	default:
	}

	go func() {
		time.Sleep(time.Second)
		l.Stop()
	}()
}

// Stop shuts the server down and releases the watch on the context passed to
// Listen. It is safe to call more than once.
func (l *Listener) Stop() {
	if l.unwatch != nil {
		l.unwatch()
	}
	l.shutdown()
}

func (l *Listener) shutdown() {
	l.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.server.Shutdown(ctx)
		_ = l.listener.Close()
	})
}
