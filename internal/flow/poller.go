package flow

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/giantswarm/tokenkit/internal/autherr"
	"github.com/giantswarm/tokenkit/pkg/logging"
)

// DefaultPollInterval is used when the provider does not send an interval.
const DefaultPollInterval = 5 * time.Second

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poller repeats a token request until the user completes the device login.
type Poller struct {
	Interval time.Duration
	// Window is the validity of the device code.
	Window time.Duration
	Sleep  Sleeper
	// Request performs one token endpoint call.
	Request func(ctx context.Context) (*Response, error)
}

// Attempts is the number of requests the validity window allows.
func (p *Poller) Attempts() int {
	return int(p.Window / p.interval())
}

func (p *Poller) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultPollInterval
	}
	return p.Interval
}

// Poll sleeps one interval before each request. An authorization_pending
// response continues the loop, any other error ends it.
func (p *Poller) Poll(ctx context.Context) (*Response, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	attempts := p.Attempts()
	for i := 0; i < attempts; i++ {
		if err := sleep(ctx, p.interval()); err != nil {
			return nil, err
		}

		resp, err := p.Request(ctx)
		if err == nil {
			return resp, nil
		}
		if !isAuthorizationPending(err) {
			return nil, err
		}
		logging.Debug("Flow", "Authorization pending (attempt %d of %d)", i+1, attempts)
	}
	return nil, autherr.ErrDeviceCodeExpired
}

func isAuthorizationPending(err error) bool {
	var pe *autherr.ProviderError
	return errors.As(err, &pe) && pe.StatusCode == http.StatusBadRequest && pe.Code == "authorization_pending"
}
