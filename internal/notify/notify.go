// Package notify fans coordination alerts out to chat platforms. Posting is
// one-way and best-effort: an unreachable platform never blocks the bus.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Field is a key-value pair rendered with a notice.
type Field struct {
	Name  string
	Value string
}

// Notice is one alert formatted for chat delivery.
type Notice struct {
	Title    string
	Body     string
	Severity string // "critical", "high", "medium", "info"
	Fields   []Field
}

// Adapter posts notices to a single chat platform.
type Adapter interface {
	// Name identifies the platform in logs, e.g. "slack".
	Name() string

	// Post delivers the notice. Implementations own their formatting.
	Post(ctx context.Context, n Notice) error
}

// Notifier broadcasts notices to every configured adapter.
type Notifier struct {
	adapters []Adapter
	log      *zap.Logger
}

// New builds a Notifier. An empty adapter list is valid: Broadcast becomes a
// no-op.
func New(adapters []Adapter, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{adapters: adapters, log: log}
}

// Broadcast posts the notice to all adapters concurrently. Adapter failures
// are logged, not returned: alert fan-out must never fail the caller.
func (n *Notifier) Broadcast(ctx context.Context, notice Notice) {
	var wg sync.WaitGroup
	for _, a := range n.adapters {
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			if err := a.Post(ctx, notice); err != nil {
				n.log.Warn("notice post failed",
					zap.String("adapter", a.Name()), zap.String("title", notice.Title), zap.Error(err))
			}
		}(a)
	}
	wg.Wait()
}

// Adapters returns the number of configured adapters.
func (n *Notifier) Adapters() int { return len(n.adapters) }

// SeverityColor maps a notice severity to a sidebar color hint shared by the
// platform adapters.
func SeverityColor(severity string) string {
	switch strings.ToLower(severity) {
	case "critical":
		return "#d00000"
	case "high":
		return "#e85d04"
	case "medium":
		return "#ffba08"
	default:
		return "#4361ee"
	}
}

// FormatBody renders the notice body plus fields as plain text, used by
// adapters without native field rendering.
func FormatBody(n Notice) string {
	body := n.Body
	for _, f := range n.Fields {
		body += fmt.Sprintf("\n%s: %s", f.Name, f.Value)
	}
	return body
}
