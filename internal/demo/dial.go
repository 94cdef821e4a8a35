package demo

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/on-the-ground/effect_ive_loop/effects"
	"github.com/on-the-ground/effect_ive_loop/effects/machine"
	"github.com/on-the-ground/effect_ive_loop/effects/source"
	"github.com/on-the-ground/effect_ive_loop/effects/timer"
)

type DialKind string

const (
	DialConnected DialKind = "connected"
	DialFailed    DialKind = "failed"
	DialRetry     DialKind = "retry"
	DialLine      DialKind = "line"
	DialClosed    DialKind = "closed"
)

// DialMsg is every value the dial session's effects dispatch. Errors are
// values here; the stepper decides what to do with them.
type DialMsg struct {
	Kind DialKind
	Conn net.Conn
	Line string
	Err  error
}

type DialPhase string

const (
	PhaseConnecting DialPhase = "connecting"
	PhaseWaiting    DialPhase = "waiting"
	PhaseReading    DialPhase = "reading"
	PhaseDone       DialPhase = "done"
)

// DialState is the state of a dial session.
type DialState struct {
	Phase DialPhase
	// Session counts established connections.
	Session int
	// Attempt counts failed and in-flight dials since the last connection.
	Attempt int
	// Wait is the pause before the next attempt; Backoff is the one after.
	Wait    time.Duration
	Backoff time.Duration
	Conn    net.Conn
	Lines   int
	LastErr error
	GaveUp  bool
}

// NewDial connects to cfg.Addr, retrying with a growing pause, and reads
// lines from every connection it gets. Backoff lives entirely in the state:
// a failed dial moves to PhaseWaiting, whose only effect is a Timeout.
func NewDial(cfg DialConfig, logger *zap.Logger) *machine.Machine[DialState, DialMsg] {
	d := dialSession{cfg: cfg, logger: logger}
	return machine.New(d.init, d.update)
}

type dialSession struct {
	cfg    DialConfig
	logger *zap.Logger
}

func (d dialSession) init(context.Context) (DialState, effects.Step[DialMsg], error) {
	s := DialState{Phase: PhaseConnecting, Attempt: 1}
	return s, d.view(s), nil
}

func (d dialSession) update(_ context.Context, s DialState, msg DialMsg) (DialState, effects.Step[DialMsg], error) {
	switch msg.Kind {
	case DialConnected:
		d.logger.Info("connected", zap.String("addr", d.cfg.Addr), zap.Int("attempt", s.Attempt))
		s.Phase = PhaseReading
		s.Session++
		s.Conn = msg.Conn
		s.Attempt, s.Wait, s.Backoff, s.LastErr = 0, 0, 0, nil

	case DialFailed:
		s.LastErr = msg.Err
		d.logger.Warn("dial failed", zap.Int("attempt", s.Attempt), zap.Error(msg.Err))
		if d.cfg.MaxAttempts > 0 && s.Attempt >= d.cfg.MaxAttempts {
			s.Phase = PhaseDone
			s.GaveUp = true
			break
		}
		s.Phase = PhaseWaiting
		s.Wait = s.Backoff
		s.Backoff = nextBackoff(s.Backoff, d.cfg.BackoffStep, d.cfg.BackoffMax)

	case DialRetry:
		s.Phase = PhaseConnecting
		s.Attempt++

	case DialLine:
		s.Lines++
		d.logger.Info("received", zap.String("line", msg.Line), zap.Int("n", s.Lines))
		if d.cfg.MaxLines > 0 && s.Lines >= d.cfg.MaxLines {
			s.Phase = PhaseDone
		}

	case DialClosed:
		d.logger.Info("connection closed", zap.Int("session", s.Session), zap.NamedError("cause", msg.Err))
		s.Conn = nil
		if d.cfg.Once {
			s.Phase = PhaseDone
			break
		}
		s.Phase = PhaseConnecting
		s.Attempt = 1
	}
	return s, d.view(s), nil
}

// view derives the effects that must run in state s.
func (d dialSession) view(s DialState) effects.Step[DialMsg] {
	switch s.Phase {
	case PhaseConnecting:
		return effects.Continue(d.dialing(s))
	case PhaseWaiting:
		return effects.Continue(timer.Timeout(s.Wait, DialMsg{Kind: DialRetry}))
	case PhaseReading:
		return effects.Continue(readingLines(s.Conn))
	default:
		return effects.Terminate[DialMsg]()
	}
}

func (d dialSession) dialing(s DialState) effects.Effect[DialMsg] {
	key := effects.Key(fmt.Sprintf("dial/%s/s%d/a%d", d.cfg.Addr, s.Session, s.Attempt))
	return source.TaskWithRelease(key, func(ctx context.Context) DialMsg {
		dialer := net.Dialer{Timeout: d.cfg.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", d.cfg.Addr)
		if err != nil {
			return DialMsg{Kind: DialFailed, Err: err}
		}
		return DialMsg{Kind: DialConnected, Conn: conn}
	}, closeConn)
}

// closeConn closes the connection of a dial result nobody will read.
func closeConn(msg DialMsg) {
	if msg.Conn != nil {
		_ = msg.Conn.Close()
	}
}

func nextBackoff(cur, step, limit time.Duration) time.Duration {
	if cur >= limit {
		return cur
	}
	cur += step
	if cur > limit {
		cur = limit
	}
	return cur
}

// readingLines dispatches every line read from conn and completes when conn
// is closed by the peer. Cancelling it closes conn.
func readingLines(conn net.Conn) effects.Effect[DialMsg] {
	key := effects.Key(fmt.Sprintf("lines/%s->%s", conn.LocalAddr(), conn.RemoteAddr()))
	return effects.Keyed(key, readLines, conn)
}

func readLines(_ context.Context, d effects.Dispatcher[DialMsg], args ...any) (effects.CancelFunc, error) {
	conn, err := effects.Arg[net.Conn](args, 0)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: nil connection", effects.ErrBadArgs)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			d.Dispatch(DialMsg{Kind: DialLine, Line: sc.Text()})
		}
		d.Done(DialMsg{Kind: DialClosed, Err: sc.Err()})
	}()

	return func() {
		_ = conn.Close()
		<-done
	}, nil
}
