package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AtsumiFlex/Aura-sub002/internal/event"
	"github.com/AtsumiFlex/Aura-sub002/internal/heartbeat"
	"github.com/AtsumiFlex/Aura-sub002/internal/protocol"
)

// outcome describes how a connection ended.
type outcome struct {
	reason    string        // Metrics label for the reconnect
	resumable bool          // Session survives; next handshake resumes
	readyFor  time.Duration // How long the connection stayed Ready
	stop      bool          // Shutdown requested
	err       error         // Fatal; the shard stops
}

// connect runs one connection attempt from dial to teardown.
func (s *Shard) connect(ctx context.Context) outcome {
	if s.stopping(ctx) {
		return outcome{stop: true}
	}

	resuming := s.resumable && s.session.CanResume()
	base := s.cfg.URL
	if resuming {
		base = s.session.ResumeURL(s.cfg.URL)
	}
	url, err := protocol.GatewayURL(base, s.cfg.Version, s.cfg.Encoding)
	if err != nil {
		return outcome{err: err}
	}

	connID := uuid.NewString()
	s.mu.Lock()
	s.connID = connID
	s.mu.Unlock()
	logger := s.logger.With("conn_id", connID)

	s.setState(StateConnecting)

	t, err := s.dialer.Dial(ctx, url)
	if err != nil {
		if s.stopping(ctx) {
			return outcome{stop: true}
		}
		logger.Warn("dial failed", "url", url, "error", err)
		s.emit(event.Error{Shard: s.cfg.ID, Err: fmt.Errorf("dial: %w", err)})
		return outcome{reason: "dial_failed", resumable: true}
	}

	c := &conn{
		shard:     s,
		transport: t,
		governor:  heartbeat.New(),
		logger:    logger,
		id:        connID,
		resuming:  resuming,
	}
	return c.run(ctx, url)
}

// conn is the state of one socket. Only the Run goroutine touches it.
type conn struct {
	shard     *Shard
	transport Transport
	governor  *heartbeat.Governor
	logger    *slog.Logger
	id        string
	resuming  bool

	helloTimer *time.Timer
	retryTimer *time.Timer // Re-identify after a non-resumable invalid session
	flushTimer *time.Timer // Next outbound flush when rate limited

	admission       chan error
	cancelAdmission context.CancelFunc
	admissionStart  time.Time
	admitted        bool

	readyAt time.Time
}

func (c *conn) run(ctx context.Context, url string) outcome {
	s := c.shard
	defer c.governor.Stop()
	defer c.cleanup()

	s.setState(StateAwaitingHello)
	s.emit(event.Connected{Shard: s.cfg.ID, ConnID: c.id, URL: url})
	c.helloTimer = time.NewTimer(s.cfg.HelloTimeout)

	for {
		select {
		case <-ctx.Done():
			return c.shutdown()

		case <-s.closeCh:
			return c.shutdown()

		case msg := <-c.transport.Messages():
			if out, done := c.handleMessage(ctx, msg); done {
				return out
			}

		case err := <-c.transport.Errors():
			if out, done := c.drain(ctx); done {
				return out
			}
			return c.handleTransportError(err)

		case <-c.governor.C():
			if out, done := c.handleTick(); done {
				return out
			}

		case err := <-c.admission:
			if out, done := c.handleAdmission(ctx, err); done {
				return out
			}

		case <-timerC(c.helloTimer):
			c.helloTimer = nil
			return c.handleHelloTimeout()

		case <-timerC(c.retryTimer):
			c.retryTimer = nil
			c.requestAdmission(ctx)

		case <-s.notify:
			if out, done := c.flush(); done {
				return out
			}

		case <-timerC(c.flushTimer):
			c.flushTimer = nil
			if out, done := c.flush(); done {
				return out
			}
		}
	}
}

// drain handles messages read before the transport failed.
func (c *conn) drain(ctx context.Context) (outcome, bool) {
	for {
		select {
		case msg := <-c.transport.Messages():
			if out, done := c.handleMessage(ctx, msg); done {
				return out, true
			}
		default:
			return outcome{}, false
		}
	}
}

func (c *conn) handleMessage(ctx context.Context, msg TimestampedMessage) (outcome, bool) {
	s := c.shard

	m, err := protocol.Decode(msg.Data)
	if err != nil {
		return c.violation(err)
	}

	state := s.State()
	switch m := m.(type) {
	case protocol.Hello:
		if state != StateAwaitingHello {
			return c.violation(errors.New("unexpected hello"))
		}
		return c.handleHello(ctx, m)

	case protocol.HeartbeatAck:
		if c.governor.AwaitingAck() {
			c.governor.OnAck()
			s.setLatency(c.governor.Latency())
		}

	case protocol.HeartbeatRequest:
		if state == StateAwaitingHello {
			return outcome{}, false
		}
		c.governor.Beat()
		seq, hasSeq := s.session.Sequence()
		return c.writeHeartbeat(seq, hasSeq)

	case protocol.Reconnect:
		c.logger.Info("gateway requested reconnect")
		return c.closeAndReconnect("reconnect_requested"), true

	case protocol.InvalidSession:
		if state == StateAwaitingHello {
			return c.violation(errors.New("invalid session before hello"))
		}
		return c.handleInvalidSession(m)

	case protocol.Dispatch:
		return c.handleDispatch(m, msg.ReceivedAt, state)

	case protocol.Unrecognized:
		c.logger.Debug("unrecognized opcode", "op", m.Op)
		s.emit(event.Debug{Shard: s.cfg.ID, Message: fmt.Sprintf("unrecognized opcode %d", m.Op)})
	}

	return outcome{}, false
}

func (c *conn) handleHello(ctx context.Context, m protocol.Hello) (outcome, bool) {
	s := c.shard
	stopTimer(&c.helloTimer)

	if err := c.governor.Start(m.HeartbeatInterval, s.cfg.HeartbeatJitter); err != nil {
		return c.violation(err)
	}
	c.logger.Debug("hello received", "heartbeat_interval", m.HeartbeatInterval)

	if c.resuming {
		s.setState(StateResuming)
		return c.sendResume()
	}

	s.setState(StateIdentifying)
	c.requestAdmission(ctx)
	return outcome{}, false
}

func (c *conn) handleDispatch(m protocol.Dispatch, receivedAt time.Time, state State) (outcome, bool) {
	s := c.shard

	switch state {
	case StateAwaitingHello:
		return c.violation(fmt.Errorf("dispatch %s before hello", m.Name))
	case StateIdentifying:
		if m.Name != protocol.EventReady {
			return c.violation(fmt.Errorf("dispatch %s before ready", m.Name))
		}
	}

	s.session.RecordEvent(m.Seq)
	s.metrics.IncDispatch(m.Name)

	switch {
	case m.Name == protocol.EventReady:
		return c.handleReady(m)
	case m.Name == protocol.EventResumed && state == StateResuming:
		return c.handleResumed()
	}

	s.emit(event.Dispatch{
		Shard:      s.cfg.ID,
		Seq:        m.Seq,
		Name:       m.Name,
		Data:       m.Data,
		ReceivedAt: receivedAt,
	})
	return outcome{}, false
}

func (c *conn) handleReady(m protocol.Dispatch) (outcome, bool) {
	s := c.shard

	ready, err := protocol.DecodeReady(m.Data)
	if err != nil {
		return c.violation(err)
	}

	s.session.Establish(ready.SessionID, ready.ResumeGatewayURL)
	c.release()
	c.enterReady()
	s.metrics.IncSessionStart("identify")

	c.logger.Info("session ready", "session_id", ready.SessionID)
	s.emit(event.Ready{
		Shard:     s.cfg.ID,
		SessionID: ready.SessionID,
		ResumeURL: ready.ResumeGatewayURL,
		Data:      m.Data,
	})

	return c.flush()
}

func (c *conn) handleResumed() (outcome, bool) {
	s := c.shard

	c.enterReady()
	s.metrics.IncSessionStart("resume")

	seq, _ := s.session.Sequence()
	c.logger.Info("session resumed", "seq", seq)
	s.emit(event.Resumed{Shard: s.cfg.ID, Sequence: seq})

	return c.flush()
}

func (c *conn) enterReady() {
	s := c.shard
	s.protocolErrors = 0
	c.resuming = false
	c.readyAt = time.Now()
	s.setState(StateReady)
}

func (c *conn) handleInvalidSession(m protocol.InvalidSession) (outcome, bool) {
	s := c.shard

	c.abandonAdmission()
	c.release()

	if m.Resumable {
		c.logger.Info("invalid session, resumable")
		return c.closeAndReconnect("invalid_session"), true
	}

	wait := c.invalidSessionWait()
	c.logger.Info("invalid session, identifying again", "wait", wait)

	s.session.Invalidate()
	s.resumable = false
	c.resuming = false
	c.readyAt = time.Time{}
	s.setState(StateIdentifying)
	s.emit(event.Debug{Shard: s.cfg.ID, Message: fmt.Sprintf("session invalidated, identifying again in %s", wait)})

	stopTimer(&c.retryTimer)
	c.retryTimer = time.NewTimer(wait)
	return outcome{}, false
}

func (c *conn) invalidSessionWait() time.Duration {
	lo, hi := c.shard.cfg.InvalidSessionMinWait, c.shard.cfg.InvalidSessionMaxWait
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

// requestAdmission asks the coordinator for an identify slot without
// blocking the loop. The result arrives on c.admission.
func (c *conn) requestAdmission(ctx context.Context) {
	s := c.shard
	ch := make(chan error, 1)
	c.admission = ch
	c.admissionStart = time.Now()

	if s.admitter == nil {
		ch <- nil
		return
	}

	actx, cancel := context.WithCancel(ctx)
	c.cancelAdmission = cancel
	c.logger.Debug("requesting identify admission")

	go func() {
		ch <- s.admitter.RequestAdmission(actx, s.cfg.ID)
	}()
}

func (c *conn) handleAdmission(ctx context.Context, err error) (outcome, bool) {
	s := c.shard
	c.admission = nil
	if c.cancelAdmission != nil {
		c.cancelAdmission()
		c.cancelAdmission = nil
	}

	if err != nil {
		if s.stopping(ctx) {
			return outcome{}, false
		}
		return outcome{err: fmt.Errorf("identify admission: %w", err)}, true
	}

	c.admitted = true
	if s.admitter != nil {
		s.metrics.ObserveAdmissionWait(time.Since(c.admissionStart))
	}

	if s.State() != StateIdentifying {
		c.release()
		return outcome{}, false
	}
	return c.sendIdentify()
}

// abandonAdmission cancels a pending request. A grant that races the
// cancel is released by the waiting goroutine.
func (c *conn) abandonAdmission() {
	ch, cancel := c.admission, c.cancelAdmission
	c.admission, c.cancelAdmission = nil, nil
	if cancel == nil {
		return
	}
	cancel()

	s := c.shard
	go func() {
		if err := <-ch; err == nil {
			s.admitter.Release(s.cfg.ID)
		}
	}()
}

// release returns the identify slot held by this connection, once.
func (c *conn) release() {
	if !c.admitted {
		return
	}
	c.admitted = false
	if c.shard.admitter != nil {
		c.shard.admitter.Release(c.shard.cfg.ID)
	}
}

func (c *conn) sendIdentify() (outcome, bool) {
	s := c.shard

	identify := protocol.Identify{
		Token:          s.cfg.Token,
		Properties:     s.cfg.Properties,
		LargeThreshold: s.cfg.LargeThreshold,
		Shard:          &[2]int{s.cfg.ID, s.cfg.Count},
		Presence:       s.cfg.Presence,
		Intents:        s.cfg.Intents,
	}
	data, err := protocol.Encode(protocol.OpIdentify, identify)
	if err != nil {
		return outcome{err: err}, true
	}

	if err := c.transport.Send(data); err != nil {
		return c.writeFailed(err)
	}
	c.logger.Info("identifying", "shard_count", s.cfg.Count, "intents", uint64(s.cfg.Intents))
	return outcome{}, false
}

func (c *conn) sendResume() (outcome, bool) {
	s := c.shard

	seq, _ := s.session.Sequence()
	resume := protocol.Resume{
		Token:     s.cfg.Token,
		SessionID: s.session.SessionID(),
		Seq:       seq,
	}
	data, err := protocol.Encode(protocol.OpResume, resume)
	if err != nil {
		return outcome{err: err}, true
	}

	if err := c.transport.Send(data); err != nil {
		return c.writeFailed(err)
	}
	c.logger.Info("resuming session", "session_id", resume.SessionID, "seq", seq)
	return outcome{}, false
}

func (c *conn) handleTick() (outcome, bool) {
	s := c.shard

	act := c.governor.OnTick(s.session.Sequence())
	if act.Kind == heartbeat.Zombied {
		c.logger.Warn("heartbeat ack missed, connection zombied", "interval", c.governor.Interval())
		s.metrics.IncZombie(s.cfg.ID)
		s.emit(event.Debug{Shard: s.cfg.ID, Message: "heartbeat ack missed, reconnecting"})
		c.transport.Abort()
		return c.teardown("zombied", true), true
	}

	return c.writeHeartbeat(act.Sequence, act.HasSeq)
}

func (c *conn) writeHeartbeat(seq int64, hasSeq bool) (outcome, bool) {
	data, err := protocol.EncodeHeartbeat(seq, hasSeq)
	if err != nil {
		return outcome{err: err}, true
	}
	if err := c.transport.Send(data); err != nil {
		return c.writeFailed(err)
	}
	return outcome{}, false
}

// flush sends queued commands while Ready and the send budget allows.
func (c *conn) flush() (outcome, bool) {
	s := c.shard
	if s.State() != StateReady || c.flushTimer != nil {
		return outcome{}, false
	}

	for {
		data, ok := s.outbound.Peek()
		if !ok {
			return outcome{}, false
		}

		now := time.Now()
		if !s.limiter.AllowN(now, 1) {
			c.flushTimer = time.NewTimer(tokenWait(s.limiter, now))
			return outcome{}, false
		}

		if err := c.transport.Send(data); err != nil {
			return c.writeFailed(err)
		}
		s.outbound.Pop()
	}
}

func (c *conn) handleHelloTimeout() outcome {
	s := c.shard
	c.logger.Warn("hello timeout", "timeout", s.cfg.HelloTimeout)
	s.emit(event.Error{Shard: s.cfg.ID, Err: ErrHelloTimeout})
	c.transport.Abort()
	return c.teardown("hello_timeout", true)
}

func (c *conn) handleTransportError(err error) outcome {
	s := c.shard

	code, reason := protocol.CloseAbnormal, err.Error()
	var ce *CloseError
	if errors.As(err, &ce) {
		code, reason = ce.Code, ce.Reason
	}
	class := protocol.ClassifyClose(code)

	c.logger.Warn("connection closed",
		"code", code,
		"reason", reason,
		"class", class,
		"state", s.State(),
	)
	s.emit(event.Closing{
		Shard:     s.cfg.ID,
		Code:      code,
		Reason:    reason,
		Resumable: class == protocol.CloseResumable,
	})

	if protocol.IsFatalClose(code) {
		return outcome{err: fmt.Errorf("%w: %w", ErrFatalClose, err)}
	}
	return c.teardown("peer_close", class == protocol.CloseResumable)
}

// violation handles a frame the peer should not have sent. The session is
// dropped; too many in a row stop the shard.
func (c *conn) violation(err error) (outcome, bool) {
	s := c.shard
	s.protocolErrors++

	perr := &ProtocolError{State: s.State(), Err: err}
	c.logger.Warn("protocol error", "error", err, "count", s.protocolErrors)
	s.emit(event.Error{Shard: s.cfg.ID, Err: perr})
	s.emit(event.Debug{Shard: s.cfg.ID, Message: "protocol error, reconnecting with a new session"})

	s.session.Invalidate()
	c.transport.Close(protocol.CloseNormal, "protocol error")

	if s.cfg.MaxProtocolErrors > 0 && s.protocolErrors >= s.cfg.MaxProtocolErrors {
		return outcome{err: fmt.Errorf("%d consecutive protocol errors: %w", s.protocolErrors, perr)}, true
	}
	return c.teardown("protocol_error", false), true
}

func (c *conn) writeFailed(err error) (outcome, bool) {
	c.logger.Warn("write failed", "error", err)
	c.transport.Abort()
	return c.teardown("write_failed", true), true
}

// closeAndReconnect drops the socket with a code that keeps the session.
func (c *conn) closeAndReconnect(reason string) outcome {
	s := c.shard
	s.emit(event.Closing{Shard: s.cfg.ID, Code: protocol.CloseResumeKeep, Reason: reason, Resumable: true})
	c.transport.Close(protocol.CloseResumeKeep, reason)
	return c.teardown(reason, true)
}

// shutdown closes the socket cleanly for a requested stop.
func (c *conn) shutdown() outcome {
	s := c.shard
	code := s.shutdownCode()

	c.logger.Info("closing connection", "code", code)
	s.emit(event.Closing{Shard: s.cfg.ID, Code: code, Reason: "shutdown", Resumable: code != protocol.CloseNormal})
	c.transport.Close(code, "shutdown")

	if code == protocol.CloseNormal {
		s.session.Invalidate()
	}
	return outcome{stop: true}
}

func (c *conn) teardown(reason string, resumable bool) outcome {
	out := outcome{reason: reason, resumable: resumable}
	if !c.readyAt.IsZero() {
		out.readyFor = time.Since(c.readyAt)
	}
	return out
}

// cleanup runs on every exit path of the connection.
func (c *conn) cleanup() {
	stopTimer(&c.helloTimer)
	stopTimer(&c.retryTimer)
	stopTimer(&c.flushTimer)
	c.abandonAdmission()
	c.release()
	c.transport.Abort()
}

// tokenWait returns how long until the limiter holds one token.
func tokenWait(l *rate.Limiter, now time.Time) time.Duration {
	missing := 1 - l.TokensAt(now)
	if missing <= 0 || l.Limit() <= 0 {
		return time.Millisecond
	}
	d := time.Duration(missing / float64(l.Limit()) * float64(time.Second))
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
