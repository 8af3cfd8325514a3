package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniwave/calling/pkg/internal/models"
)

type fakeRinger struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
}

func (r *fakeRinger) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return r.startErr
}

func (r *fakeRinger) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
}

func (r *fakeRinger) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

type fakeAlerter struct {
	permission AlertPermission
	requests   int
	alerts     []models.IncomingCall
}

func (a *fakeAlerter) Permission() AlertPermission { return a.permission }

func (a *fakeAlerter) RequestPermission() AlertPermission {
	a.requests++
	a.permission = AlertGranted
	return a.permission
}

func (a *fakeAlerter) Alert(call models.IncomingCall) error {
	a.alerts = append(a.alerts, call)
	return nil
}

func newTestPresenter(ringer *fakeRinger, alerter Alerter) *Presenter {
	return &Presenter{
		user:    models.Account{BaseModel: models.BaseModel{ID: 1}, Name: "callee"},
		ringer:  ringer,
		alerter: alerter,
		window:  time.Hour,
		handoff: func(call models.IncomingCall) (*CallSession, error) {
			return &CallSession{Room: "room", CallType: call.CallType}, nil
		},
		decline:    func(callId string) error { return nil },
		markMissed: func(callId string) error { return nil },
	}
}

func incoming(callId string) models.IncomingCall {
	return models.IncomingCall{
		CallID:    callId,
		FromID:    2,
		FromName:  "Caller",
		CallType:  models.CallTypeVoice,
		Timestamp: time.Now(),
	}
}

func TestPresenterSingleSurface(t *testing.T) {
	ringer := &fakeRinger{}
	p := newTestPresenter(ringer, nil)

	require.NoError(t, p.Present(incoming("c1")))
	assert.ErrorIs(t, p.Present(incoming("c2")), ErrCallInProgress)

	active := p.Active()
	require.NotNil(t, active)
	assert.Equal(t, "c1", active.CallID)
}

func TestPresenterAcceptHandsOffOnce(t *testing.T) {
	ringer := &fakeRinger{}
	p := newTestPresenter(ringer, nil)

	var handoffs []string
	p.handoff = func(call models.IncomingCall) (*CallSession, error) {
		handoffs = append(handoffs, call.CallID)
		return &CallSession{Room: "derived", CallType: call.CallType}, nil
	}

	require.NoError(t, p.Present(incoming("c1")))
	session, err := p.Accept()
	require.NoError(t, err)
	assert.Equal(t, "derived", session.Room)
	assert.Equal(t, []string{"c1"}, handoffs)

	starts, stops := ringer.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.Nil(t, p.Active())

	_, err = p.Accept()
	assert.Error(t, err)
	assert.Equal(t, []string{"c1"}, handoffs)
}

func TestPresenterAcceptFailureKeepsSurface(t *testing.T) {
	ringer := &fakeRinger{}
	p := newTestPresenter(ringer, nil)
	p.handoff = func(call models.IncomingCall) (*CallSession, error) {
		return nil, fmt.Errorf("conference backend unavailable")
	}

	require.NoError(t, p.Present(incoming("c1")))
	_, err := p.Accept()
	require.Error(t, err)

	// The call stays on screen, still ringing, so the user can retry.
	active := p.Active()
	require.NotNil(t, active)
	assert.Equal(t, "c1", active.CallID)
	_, stops := ringer.counts()
	assert.Zero(t, stops)

	p.handoff = func(call models.IncomingCall) (*CallSession, error) {
		return &CallSession{Room: "derived", CallType: call.CallType}, nil
	}
	session, err := p.Accept()
	require.NoError(t, err)
	assert.Equal(t, "derived", session.Room)
	assert.Nil(t, p.Active())
}

func TestPresenterDeclineClearsDespiteWriteFailure(t *testing.T) {
	ringer := &fakeRinger{}
	p := newTestPresenter(ringer, nil)
	p.decline = func(callId string) error { return fmt.Errorf("network down") }

	require.NoError(t, p.Present(incoming("c1")))
	p.Decline()

	assert.Nil(t, p.Active())
	_, stops := ringer.counts()
	assert.Equal(t, 1, stops)
}

func TestPresenterExpiryMarksMissed(t *testing.T) {
	ringer := &fakeRinger{}
	p := newTestPresenter(ringer, nil)
	p.window = 30 * time.Millisecond

	missed := make(chan string, 1)
	p.markMissed = func(callId string) error {
		missed <- callId
		return nil
	}
	expired := make(chan models.IncomingCall, 1)
	p.OnExpire(func(call models.IncomingCall) { expired <- call })

	require.NoError(t, p.Present(incoming("c1")))

	select {
	case callId := <-missed:
		assert.Equal(t, "c1", callId)
	case <-time.After(time.Second):
		t.Fatal("expected the expired call to be marked missed")
	}

	select {
	case call := <-expired:
		assert.Equal(t, "c1", call.CallID)
	case <-time.After(time.Second):
		t.Fatal("expected the expiry hook to fire")
	}

	assert.Nil(t, p.Active())
	_, stops := ringer.counts()
	assert.Equal(t, 1, stops)
}

func TestPresenterAcceptCancelsExpiry(t *testing.T) {
	ringer := &fakeRinger{}
	p := newTestPresenter(ringer, nil)
	p.window = 30 * time.Millisecond

	var missed []string
	p.markMissed = func(callId string) error {
		missed = append(missed, callId)
		return nil
	}

	require.NoError(t, p.Present(incoming("c1")))
	_, err := p.Accept()
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, missed)
}

func TestPresenterRingFailureIsNonFatal(t *testing.T) {
	ringer := &fakeRinger{startErr: fmt.Errorf("autoplay blocked")}
	p := newTestPresenter(ringer, nil)

	require.NoError(t, p.Present(incoming("c1")))
	require.NotNil(t, p.Active())
}

func TestPresenterAlertPermissionFlow(t *testing.T) {
	t.Run("undecided asks once and alerts when granted", func(t *testing.T) {
		alerter := &fakeAlerter{permission: AlertUndecided}
		p := newTestPresenter(&fakeRinger{}, alerter)

		require.NoError(t, p.Present(incoming("c1")))
		assert.Equal(t, 1, alerter.requests)
		assert.Len(t, alerter.alerts, 1)
	})

	t.Run("denied is never re-prompted", func(t *testing.T) {
		alerter := &fakeAlerter{permission: AlertDenied}
		p := newTestPresenter(&fakeRinger{}, alerter)

		require.NoError(t, p.Present(incoming("c1")))
		assert.Zero(t, alerter.requests)
		assert.Empty(t, alerter.alerts)
	})

	t.Run("granted alerts without asking", func(t *testing.T) {
		alerter := &fakeAlerter{permission: AlertGranted}
		p := newTestPresenter(&fakeRinger{}, alerter)

		require.NoError(t, p.Present(incoming("c1")))
		assert.Zero(t, alerter.requests)
		assert.Len(t, alerter.alerts, 1)
	})
}
