// Package alerts raises internal operator alerts for conditions that need a
// human: qualification retry exhaustion, fatal dispatch failures.
package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/leadwire/leadwire/pkg/logging"
)

// Severity ranks an alert for routing. Warning pages nobody; critical should.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one operator-facing incident record.
type Alert struct {
	Severity  Severity
	CompanyID string
	Summary   string
	Detail    string
	At        time.Time
}

// Alerter delivers alerts to whatever is on the other end.
// Implementations can be swapped (log, pager, email) without changing callers.
type Alerter interface {
	Raise(ctx context.Context, alert Alert) error
}

// LogAlerter writes alerts to the structured log. The default sink when no
// paging integration is configured.
type LogAlerter struct {
	logger *logging.Logger
}

func NewLogAlerter(logger *logging.Logger) *LogAlerter {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Raise(_ context.Context, alert Alert) error {
	a.logger.Error("internal alert raised",
		"severity", string(alert.Severity),
		"company_id", alert.CompanyID,
		"summary", alert.Summary,
		"detail", alert.Detail)
	return nil
}

// RecorderAlerter captures alerts in memory for tests.
type RecorderAlerter struct {
	mu     sync.Mutex
	alerts []Alert
}

func NewRecorderAlerter() *RecorderAlerter { return &RecorderAlerter{} }

func (a *RecorderAlerter) Raise(_ context.Context, alert Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}
	a.alerts = append(a.alerts, alert)
	return nil
}

// Alerts returns a snapshot of everything raised so far.
func (a *RecorderAlerter) Alerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Alert(nil), a.alerts...)
}
