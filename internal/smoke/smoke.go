// Package smoke runs the fixed post-start check battery against a target
// environment before it is allowed to receive traffic.
package smoke

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/common/expfmt"

	"promotectl/internal/config"
	"promotectl/internal/environment"
	"promotectl/pkg/logging"
)

// Check names, in execution order. The runner stops at the first failure.
const (
	CheckBasicConnectivity = "basicConnectivity"
	CheckProtocolUpgrade   = "protocolUpgrade"
	CheckMetricsPresence   = "metricsPresence"
)

// RequiredMetric is the gauge whose presence in the metrics exposition
// signals that instrumentation is wired up. Its value is deliberately not
// checked.
const RequiredMetric = "websocket_connections_active"

// chatPath is the websocket endpoint the managed app serves.
const chatPath = "/ws/chat/"

// CheckResult is one named check's verdict.
type CheckResult struct {
	Name   string
	Passed bool
	Detail string // Diagnostic message for failures, empty on pass
}

// Outcome is the ordered list of check results for one run. Because the
// runner fails fast, a failing run contains only the checks that executed.
type Outcome struct {
	Checks []CheckResult
}

// Passed reports whether every executed check passed.
func (o Outcome) Passed() bool {
	if len(o.Checks) == 0 {
		return false
	}
	for _, c := range o.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// FailedCheck returns the first failing check, if any.
func (o Outcome) FailedCheck() (CheckResult, bool) {
	for _, c := range o.Checks {
		if !c.Passed {
			return c, true
		}
	}
	return CheckResult{}, false
}

// TimeoutError means the battery did not complete within the overall
// deadline.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("smoke tests did not complete within %s", e.Timeout)
}

// Runner executes the battery against one environment's published port.
type Runner struct {
	// Host the environment's port is published on. Defaults to localhost;
	// tests point it at an httptest listener.
	Host string

	timeout time.Duration
}

// NewRunner creates a Runner with the configured overall deadline.
func NewRunner(settings config.SmokeSettings) *Runner {
	return &Runner{
		Host:    "localhost",
		timeout: settings.Timeout.Std(),
	}
}

// Run executes the checks in fixed order, stopping at the first failure.
// The whole battery shares one deadline; exceeding it returns a
// TimeoutError. A failing check is not an error: it is recorded in the
// Outcome for the caller to act on.
func (r *Runner) Run(ctx context.Context, env environment.Environment) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addr := net.JoinHostPort(r.Host, strconv.Itoa(env.Port))

	var outcome Outcome
	checks := []struct {
		name string
		run  func(ctx context.Context, addr string) error
	}{
		{CheckBasicConnectivity, r.checkBasicConnectivity},
		{CheckProtocolUpgrade, r.checkProtocolUpgrade},
		{CheckMetricsPresence, r.checkMetricsPresence},
	}

	for _, check := range checks {
		err := check.run(ctx, addr)
		if err != nil && ctx.Err() == context.DeadlineExceeded {
			return outcome, &TimeoutError{Timeout: r.timeout}
		}
		if err != nil && ctx.Err() != nil {
			return outcome, ctx.Err()
		}

		result := CheckResult{Name: check.name, Passed: err == nil}
		if err != nil {
			result.Detail = err.Error()
		}
		outcome.Checks = append(outcome.Checks, result)

		if err != nil {
			logging.Warn("SmokeTest", "Check %s failed against %s: %v", check.name, addr, err)
			return outcome, nil
		}
		logging.Debug("SmokeTest", "Check %s passed against %s", check.name, addr)
	}

	return outcome, nil
}

// checkBasicConnectivity passes iff an unauthenticated GET of the health
// endpoint returns a success status.
func (r *Runner) checkBasicConnectivity(ctx context.Context, addr string) error {
	resp, err := httpGet(ctx, fmt.Sprintf("http://%s/healthz", addr))
	if err != nil {
		return fmt.Errorf("health endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// chatReply is the shape of the chat consumer's response to a message.
type chatReply struct {
	Count *int `json:"count"`
}

// checkProtocolUpgrade opens a websocket to the chat endpoint, sends a probe
// message, and expects a well-formed counted reply before the deadline.
func (r *Runner) checkProtocolUpgrade(ctx context.Context, addr string) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: chatPath}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket upgrade failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	probe := map[string]string{"message": "promotectl smoke probe"}
	if err := conn.WriteJSON(probe); err != nil {
		return fmt.Errorf("sending probe message: %w", err)
	}

	var reply chatReply
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("reading probe response: %w", err)
	}
	if reply.Count == nil {
		return fmt.Errorf("probe response is missing the message count")
	}
	return nil
}

// checkMetricsPresence fetches the metrics exposition and verifies the
// active-connections gauge family is present. The text is run through a real
// exposition parser rather than substring-matched, so a malformed body fails
// the check too.
func (r *Runner) checkMetricsPresence(ctx context.Context, addr string) error {
	resp, err := httpGet(ctx, fmt.Sprintf("http://%s/metrics", addr))
	if err != nil {
		return fmt.Errorf("metrics endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("metrics endpoint returned status %d", resp.StatusCode)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return fmt.Errorf("parsing metrics exposition: %w", err)
	}

	if _, ok := families[RequiredMetric]; !ok {
		return fmt.Errorf("metric %s not present in exposition", RequiredMetric)
	}
	return nil
}

func httpGet(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

// MarshalDetail renders an outcome as a compact one-line summary for logs.
func (o Outcome) MarshalDetail() string {
	b, err := json.Marshal(o.Checks)
	if err != nil {
		return fmt.Sprintf("%v", o.Checks)
	}
	return string(b)
}
