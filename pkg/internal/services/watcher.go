package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/uniwave/calling/pkg/internal/models"
)

// Watcher turns the raw pending-call feed into IncomingCall emissions for
// a single account. Records that are not addressed to the account, group
// calls it is not a member of, and callers whose profile cannot be
// resolved are all dropped without surfacing anything to the user.
//
// A feed error stops the watcher entirely instead of retrying; a degraded
// store should not be hammered by every connected client. Listening again
// requires another StartListening call.
type Watcher struct {
	feed CallFeed

	resolveAccount func(id uint) (models.Account, error)
	checkMember    func(accountId, groupId uint) (bool, error)

	mu      sync.Mutex
	userId  uint
	handler func(models.IncomingCall)
	cancel  context.CancelFunc
	session uint64
}

func NewWatcher(feed CallFeed) *Watcher {
	return &Watcher{
		feed:           feed,
		resolveAccount: GetAccount,
		checkMember:    CheckGroupMember,
	}
}

// StartListening subscribes for the given account and replaces any
// previous subscription and callback.
func (w *Watcher) StartListening(userId uint, cb func(models.IncomingCall)) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.userId = userId
	w.handler = cb
	w.cancel = cancel
	w.session++
	session := w.session
	w.mu.Unlock()

	records, errs, err := w.feed.Subscribe(ctx)
	if err != nil {
		cancel()
		return err
	}

	go w.consume(session, records, errs)
	return nil
}

// StopListening tears the subscription down. Safe to call when idle.
func (w *Watcher) StopListening() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.handler = nil
}

func (w *Watcher) consume(session uint64, records <-chan models.CallRecord, errs <-chan error) {
	for {
		select {
		case record, ok := <-records:
			if !ok {
				// The feed closes both channels together; a failure queued
				// on errs must still trip the breaker when the closed
				// records branch wins the select.
				if err, ok := <-errs; ok && err != nil {
					w.failSession(session, err)
				}
				return
			}
			if call, ok := w.admit(record); ok {
				w.emit(session, call)
			}
		case err, ok := <-errs:
			if ok && err != nil {
				w.failSession(session, err)
			}
			return
		}
	}
}

// failSession is the circuit breaker: a broken feed stops the watcher
// outright unless the subscription was already replaced.
func (w *Watcher) failSession(session uint64, err error) {
	log.Error().Err(err).Msg("Pending call subscription failed, stopped listening...")
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == session && w.cancel != nil {
		w.cancel()
		w.cancel = nil
		w.handler = nil
	}
}

// admit applies the admission policy, in order: addressing, membership
// (fail-closed), caller identity resolution.
func (w *Watcher) admit(record models.CallRecord) (models.IncomingCall, bool) {
	var none models.IncomingCall

	w.mu.Lock()
	userId := w.userId
	w.mu.Unlock()

	if record.FromID == userId {
		return none, false
	}
	if !record.IsGroupCall() {
		if record.ToID == nil || *record.ToID != userId {
			return none, false
		}
	} else {
		ok, err := w.checkMember(userId, *record.GroupID)
		if err != nil {
			log.Warn().Err(err).Str("call", record.CallID).
				Msg("Membership check failed, suppressing call notification...")
			return none, false
		}
		if !ok {
			return none, false
		}
	}

	caller, err := w.resolveAccount(record.FromID)
	if err != nil {
		log.Warn().Err(err).Uint("caller", record.FromID).
			Msg("Unable to resolve caller identity, dropping call...")
		return none, false
	}

	return models.NewIncomingCall(record, caller), true
}

// emit invokes the callback unless the subscription was replaced or torn
// down while the record was in flight.
func (w *Watcher) emit(session uint64, call models.IncomingCall) {
	w.mu.Lock()
	handler := w.handler
	if w.session != session || w.cancel == nil {
		handler = nil
	}
	w.mu.Unlock()

	if handler != nil {
		handler(call)
	}
}
