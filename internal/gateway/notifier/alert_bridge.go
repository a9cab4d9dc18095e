package notifier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"riptide/internal/bus"
	"riptide/internal/logger"
	"riptide/internal/types"
)

// AlertBridge forwards bus alerts at or above a severity floor to a text
// notifier. Send failures are logged, never retried here; the notifier owns
// its own retry policy.
type AlertBridge struct {
	bus         *bus.Bus
	notifier    TextNotifier
	minSeverity types.AlertSeverity
}

func NewAlertBridge(b *bus.Bus, n TextNotifier, minSeverity types.AlertSeverity) *AlertBridge {
	if minSeverity == "" {
		minSeverity = types.AlertWarning
	}
	return &AlertBridge{bus: b, notifier: n, minSeverity: minSeverity}
}

func severityRank(s types.AlertSeverity) int {
	switch s {
	case types.AlertInfo:
		return 0
	case types.AlertWarning:
		return 1
	case types.AlertCritical:
		return 2
	default:
		return 1
	}
}

// Run consumes until ctx is cancelled or the bus closes.
func (a *AlertBridge) Run(ctx context.Context) error {
	if a == nil || a.bus == nil || a.notifier == nil {
		return nil
	}
	alerts, cancel := a.bus.Alerts.Subscribe()
	defer cancel()

	floor := severityRank(a.minSeverity)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case alert, ok := <-alerts:
			if !ok {
				return nil
			}
			if severityRank(alert.Severity) < floor {
				continue
			}
			if err := a.notifier.SendText(formatAlert(alert)); err != nil {
				logger.Warnf("Alert bridge: send failed (%s): %v", alert.Type, err)
			}
		}
	}
}

func formatAlert(alert types.AlertEvent) string {
	icon := "⚠️"
	if alert.Severity == types.AlertCritical {
		icon = "🚨"
	}
	lines := make([]string, 0, len(alert.Context))
	keys := make([]string, 0, len(alert.Context))
	for k := range alert.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, alert.Context[k]))
	}
	msg := StructuredMessage{
		Icon:  icon,
		Title: strings.ToUpper(string(alert.Severity)) + " " + alert.Type,
		Sections: []MessageSection{
			{Title: alert.Message, Lines: lines},
		},
		Timestamp: alert.Timestamp,
	}
	return msg.RenderMarkdown()
}
