// Package distribute fans a generated report out to every configured delivery
// channel. Channels are isolated from each other: a failure, timeout or panic
// in one is recorded and the rest still run.
package distribute

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"feedbackbot/internal/domain"

	"go.uber.org/zap"
)

const DefaultTimeout = 30 * time.Second

type Channel interface {
	Name() string
	IsConfigured() bool
	Deliver(ctx context.Context, report domain.Report) error
}

type Failure struct {
	Channel string `json:"channel"`
	Error   string `json:"error"`
	err     error
}

func (f Failure) Err() error { return f.err }

// Summary records the outcome per channel, in channel order.
type Summary struct {
	Delivered []string  `json:"delivered"`
	Failed    []Failure `json:"failed"`
	Skipped   []string  `json:"skipped"`
}

func (s Summary) OK() bool { return len(s.Failed) == 0 }

type Distributor struct {
	channels []Channel
	timeout  time.Duration
	logger   *zap.Logger
}

func New(timeout time.Duration, logger *zap.Logger, channels ...Channel) *Distributor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Distributor{channels: channels, timeout: timeout, logger: logger}
}

// Channels returns the configured adapters in delivery order.
func (d *Distributor) Channels() []Channel {
	return d.channels
}

// Distribute tries every channel once, sequentially. It never fails as a whole.
// Channel contexts are detached from ctx cancellation so one caller going away
// does not abort the remaining deliveries; each still gets its own timeout.
func (d *Distributor) Distribute(ctx context.Context, report domain.Report) Summary {
	base := context.WithoutCancel(ctx)
	sum := Summary{Delivered: []string{}, Failed: []Failure{}, Skipped: []string{}}
	for i, ch := range d.channels {
		name := channelName(ch, i)
		start := time.Now()
		skipped, err := d.deliver(base, ch, name, report)
		switch {
		case err != nil:
			d.logger.Error("report delivery failed",
				zap.String("channel", name),
				zap.Int64("report_id", report.ID),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
			sum.Failed = append(sum.Failed, Failure{Channel: name, Error: err.Error(), err: err})
		case skipped:
			d.logger.Info("channel not configured, skipping", zap.String("channel", name))
			sum.Skipped = append(sum.Skipped, name)
		default:
			d.logger.Info("report delivered",
				zap.String("channel", name),
				zap.Int64("report_id", report.ID),
				zap.Duration("elapsed", time.Since(start)))
			sum.Delivered = append(sum.Delivered, name)
		}
	}
	return sum
}

// deliver runs the configuration check and the delivery for one channel. A
// panic in either is returned as an error.
func (d *Distributor) deliver(ctx context.Context, ch Channel, name string, report domain.Report) (skipped bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("channel panic stack", zap.String("channel", name), zap.ByteString("stack", debug.Stack()))
			skipped, err = false, fmt.Errorf("channel %s panicked: %v", name, r)
		}
	}()
	if !ch.IsConfigured() {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return false, ch.Deliver(ctx, report)
}

func channelName(ch Channel, i int) (name string) {
	defer func() {
		if r := recover(); r != nil {
			name = fmt.Sprintf("channel-%d", i)
		}
	}()
	return ch.Name()
}
