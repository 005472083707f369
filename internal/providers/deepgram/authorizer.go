package deepgram

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"voxbind/internal/domain"
)

const (
	defaultProbeTimeout  = 5 * time.Second
	defaultWatchInterval = 30 * time.Second
)

type probeResult struct {
	status     int
	err        error
	configured bool
}

type prober struct {
	cfg    Config
	client *http.Client
}

func newProber(cfg Config, client *http.Client) prober {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultProbeTimeout}
	}
	return prober{cfg: cfg, client: client}
}

func (p prober) probe(ctx context.Context) probeResult {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return probeResult{}
	}

	endpoint := strings.TrimRight(strings.TrimSpace(p.cfg.APIBaseURL), "/") + "/projects"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return probeResult{configured: true, err: err}
	}
	req.Header.Set("Authorization", "Token "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return probeResult{configured: true, err: err}
	}
	_ = resp.Body.Close()
	return probeResult{configured: true, status: resp.StatusCode}
}

// Authorizer maps a Deepgram credential probe to an authorization status.
type Authorizer struct {
	prober prober
	log    logrus.FieldLogger
}

func NewAuthorizer(cfg Config, client *http.Client, logger logrus.FieldLogger) *Authorizer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Authorizer{prober: newProber(cfg, client), log: logger.WithField("component", "deepgram-auth")}
}

// RequestAuthorization probes in the background and calls cb exactly once.
func (a *Authorizer) RequestAuthorization(cb func(domain.AuthorizationStatus)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultProbeTimeout)
		defer cancel()

		result := a.prober.probe(ctx)
		status := authorizationFor(result)
		entry := a.log.WithField("status", status.String())
		if result.err != nil {
			entry = entry.WithError(result.err)
		}
		entry.Debug("authorization probe finished")
		cb(status)
	}()
}

func authorizationFor(result probeResult) domain.AuthorizationStatus {
	switch {
	case !result.configured:
		return domain.AuthorizationDenied
	case result.err != nil:
		return domain.AuthorizationUndetermined
	case result.status >= 200 && result.status < 300:
		return domain.AuthorizationAuthorized
	case result.status == http.StatusUnauthorized:
		return domain.AuthorizationDenied
	case result.status == http.StatusForbidden || result.status == http.StatusPaymentRequired:
		return domain.AuthorizationRestricted
	default:
		return domain.AuthorizationUndetermined
	}
}

// availableFor reports whether the service answered and can take requests.
func availableFor(result probeResult) bool {
	if !result.configured || result.err != nil {
		return false
	}
	return result.status < http.StatusInternalServerError
}

// Monitor polls Deepgram reachability.
type Monitor struct {
	prober   prober
	interval time.Duration
	log      logrus.FieldLogger
}

func NewMonitor(cfg Config, interval time.Duration, client *http.Client, logger logrus.FieldLogger) *Monitor {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Monitor{prober: newProber(cfg, client), interval: interval, log: logger.WithField("component", "deepgram-availability")}
}

// Watch blocks until ctx is done. cb gets the first probe result and every
// change after it.
func (m *Monitor) Watch(ctx context.Context, cb func(bool)) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var last bool
	first := true
	for {
		probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
		result := m.prober.probe(probeCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}

		available := availableFor(result)
		if first || available != last {
			m.log.WithField("available", available).Debug("recognizer availability changed")
			cb(available)
			first = false
			last = available
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
