package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/ports"
)

// reconnectPolicy re-establishes the transport after an unexpected
// drop. Sessions are short interactive recordings, so the policy is a
// single attempt per recording cycle after a fixed delay; a second
// failure escalates instead of looping.
type reconnectPolicy struct {
	transport ports.Transport
	delay     time.Duration
	log       *slog.Logger

	mu       sync.Mutex
	attempts int
}

func newReconnectPolicy(transport ports.Transport, delay time.Duration, log *slog.Logger) *reconnectPolicy {
	return &reconnectPolicy{transport: transport, delay: delay, log: log}
}

// resetCycle restores the retry budget at the start of a new recording.
func (p *reconnectPolicy) resetCycle() {
	p.mu.Lock()
	p.attempts = 0
	p.mu.Unlock()
}

// reestablish performs the single allowed reconnect attempt.
func (p *reconnectPolicy) reestablish(ctx context.Context) error {
	p.mu.Lock()
	if p.attempts >= 1 {
		p.mu.Unlock()
		return fmt.Errorf("%w: reconnect already attempted this cycle", domain.ErrConnectFailed)
	}
	p.attempts++
	p.mu.Unlock()

	p.log.Info("attempting reconnect", "delay", p.delay)
	if p.delay > 0 {
		if err := sleepCtx(ctx, p.delay); err != nil {
			return err
		}
	}

	if err := p.transport.Connect(ctx); err != nil {
		return err
	}
	return nil
}
