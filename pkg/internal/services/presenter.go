package services

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/uniwave/calling/pkg/internal/models"
)

// Ringer loops the ringtone on the callee's device. Starting can fail
// (autoplay policies); that is a warning, never a crash.
type Ringer interface {
	Start() error
	Stop()
}

type AlertPermission int

const (
	AlertUndecided = AlertPermission(iota)
	AlertGranted
	AlertDenied
)

// Alerter raises a platform-level notification. Permission is requested
// lazily and only while undecided; a denial is never re-prompted.
type Alerter interface {
	Permission() AlertPermission
	RequestPermission() AlertPermission
	Alert(call models.IncomingCall) error
}

var ErrCallInProgress = errors.New("another incoming call is already being presented")

// Presenter drives the single incoming-call surface for one account: at
// most one call is presented at a time, ringing for a bounded window
// until the user accepts, declines, dismisses, or the window expires.
type Presenter struct {
	user    models.Account
	ringer  Ringer
	alerter Alerter

	window     time.Duration
	handoff    func(call models.IncomingCall) (*CallSession, error)
	decline    func(callId string) error
	markMissed func(callId string) error
	onExpire   func(call models.IncomingCall)

	mu     sync.Mutex
	active *models.IncomingCall
	timer  *time.Timer
}

func NewPresenter(user models.Account, ringer Ringer, alerter Alerter) *Presenter {
	window := viper.GetDuration("calling.ring_timeout")
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Presenter{
		user:    user,
		ringer:  ringer,
		alerter: alerter,
		window:  window,
		handoff: func(call models.IncomingCall) (*CallSession, error) {
			return JoinCall(call, user)
		},
		decline: func(callId string) error {
			return DeclineCall(callId, user)
		},
		markMissed: MarkCallMissed,
	}
}

// Present shows one incoming call. A second call while one is on screen
// is rejected outright; the caller sees it as unanswered.
func (p *Presenter) Present(call models.IncomingCall) error {
	p.mu.Lock()
	if p.active != nil {
		p.mu.Unlock()
		log.Info().Str("call", call.CallID).
			Msg("Busy with another incoming call, rejecting the second one...")
		return ErrCallInProgress
	}
	p.active = &call
	p.timer = time.AfterFunc(p.window, func() { p.expire(call.CallID) })
	p.mu.Unlock()

	if err := p.ringer.Start(); err != nil {
		log.Warn().Err(err).Msg("Unable to start ringtone playback...")
	}

	if p.alerter != nil {
		perm := p.alerter.Permission()
		if perm == AlertUndecided {
			perm = p.alerter.RequestPermission()
		}
		if perm == AlertGranted {
			if err := p.alerter.Alert(call); err != nil {
				log.Warn().Err(err).Msg("Unable to raise platform notification...")
			}
		}
	}

	return nil
}

// Active returns the call currently on screen, if any.
func (p *Presenter) Active() *models.IncomingCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return nil
	}
	call := *p.active
	return &call
}

// Accept hands the call off to the session side and clears the surface
// only once that worked. A failed handoff keeps the call on screen, still
// ringing, so the user can retry or let it ring out.
func (p *Presenter) Accept() (*CallSession, error) {
	p.mu.Lock()
	if p.active == nil {
		p.mu.Unlock()
		return nil, errors.New("no incoming call to accept")
	}
	call := *p.active
	p.mu.Unlock()

	session, err := p.handoff(call)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	// The surface may have rotated while the handoff ran.
	cleared := p.active != nil && p.active.CallID == call.CallID
	if cleared {
		p.active = nil
		if p.timer != nil {
			p.timer.Stop()
			p.timer = nil
		}
	}
	p.mu.Unlock()

	if cleared {
		p.ringer.Stop()
	}
	return session, nil
}

// Decline clears the surface and writes the declined transition. The
// write is best-effort: local dismissal always succeeds.
func (p *Presenter) Decline() {
	call, ok := p.take()
	if !ok {
		return
	}
	if err := p.decline(call.CallID); err != nil {
		log.Warn().Err(err).Str("call", call.CallID).
			Msg("Unable to persist declined call, dismissed locally anyway...")
	}
}

// Dismiss clears the surface without writing anything back.
func (p *Presenter) Dismiss() {
	p.take()
}

// Close tears down timers and ringing, e.g. when the client disconnects.
func (p *Presenter) Close() {
	p.take()
}

func (p *Presenter) expire(callId string) {
	p.mu.Lock()
	if p.active == nil || p.active.CallID != callId {
		p.mu.Unlock()
		return
	}
	call := *p.active
	p.active = nil
	p.timer = nil
	p.mu.Unlock()

	p.ringer.Stop()

	if err := p.markMissed(call.CallID); err != nil {
		log.Warn().Err(err).Str("call", call.CallID).
			Msg("Unable to mark expired call as missed...")
	}
	if p.onExpire != nil {
		p.onExpire(call)
	}
}

// take atomically clears the active call, cancels the expiry timer and
// stops the ringtone, returning what was on screen.
func (p *Presenter) take() (*models.IncomingCall, bool) {
	p.mu.Lock()
	call := p.active
	p.active = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	if call == nil {
		return nil, false
	}
	p.ringer.Stop()
	return call, true
}

// OnExpire registers a hook fired after the ring window lapses, used by
// the gateway to tell the client the call was missed.
func (p *Presenter) OnExpire(fn func(call models.IncomingCall)) {
	p.onExpire = fn
}
