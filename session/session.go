package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/concierge/action"
	"github.com/hupe1980/concierge/agent"
	"github.com/hupe1980/concierge/channel"
	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/flow"
	"github.com/hupe1980/concierge/handoff"
	"github.com/hupe1980/concierge/logging"
	"github.com/hupe1980/concierge/metrics"
	"github.com/hupe1980/concierge/model"
	"github.com/hupe1980/concierge/state"
	"github.com/hupe1980/concierge/transcript"
)

// DefaultErrorReply is spoken when a turn fails unexpectedly.
const DefaultErrorReply = "Sorry, I'm having trouble right now. Could you say that again?"

// ErrClosed is returned by HandleTurn after Close.
var ErrClosed = errors.New("session closed")

var errEnded = errors.New("session ended")

// Options configures a Session.
type Options struct {
	// ID defaults to a random UUID.
	ID         string
	Registry   *agent.Registry
	EntryAgent string
	Model      model.Model
	Providers  action.Set
	// Fields declares the shared state fields; empty selects state.StandardFields.
	Fields []string

	HandoffCap   int
	Window       int
	MaxToolHops  int
	ToolTimeout  time.Duration
	Interceptors []flow.Interceptor

	// Transcript takes precedence over TranscriptDir. Without either the
	// transcript is discarded.
	Transcript    *transcript.Writer
	TranscriptDir string

	Hooks       []metrics.Hook
	Logger      logging.Logger
	InputBuffer int
	Greeting    string
	ErrorReply  string
}

// Reply is the outcome of one caller turn.
type Reply struct {
	Utterances []channel.Utterance
	Agent      string
	Handoffs   []core.HandoffRecord
	Terminated bool
}

// Text joins the utterance texts.
func (r *Reply) Text() string {
	parts := make([]string, len(r.Utterances))
	for i, u := range r.Utterances {
		parts[i] = u.Text
	}
	return strings.Join(parts, " ")
}

// Session is one conversation. HandleTurn calls are serialized.
type Session struct {
	id        string
	opts      Options
	registry  *agent.Registry
	state     *state.State
	histories *handoff.Histories
	coord     *handoff.Coordinator
	loop      *flow.Loop
	tr        *transcript.Writer
	usage     *metrics.UsageCollector
	observer  *metrics.Observer
	logger    logging.Logger
	startedAt time.Time

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// New validates the configuration, freezes the registry, enters the entry
// agent and opens the transcript. Configuration problems are reported as
// *core.FatalInitializationError.
func New(optFns ...func(o *Options)) (*Session, error) {
	opts := Options{
		EntryAgent:  "main",
		InputBuffer: 8,
		ErrorReply:  DefaultErrorReply,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ID == "" {
		opts.ID = core.NewID()
	}

	if err := validate(&opts); err != nil {
		return nil, err
	}
	opts.Registry.Freeze()

	logger := logging.OrNoOp(opts.Logger)
	if sl, ok := logger.(*logging.SessionLogger); ok {
		logger = sl.WithSession(opts.ID)
	}

	s := &Session{
		id:        opts.ID,
		opts:      opts,
		registry:  opts.Registry,
		state:     state.New(opts.Fields...),
		histories: handoff.NewHistories(),
		usage:     metrics.NewUsageCollector(),
		logger:    logger,
		startedAt: time.Now(),
	}

	coord, err := handoff.NewCoordinator(s.registry, s.state, s.histories, opts.EntryAgent, func(o *handoff.Options) {
		o.Cap = opts.HandoffCap
		o.Window = opts.Window
		o.Logger = logger
	})
	if err != nil {
		return nil, &core.FatalInitializationError{Reason: "entry agent", Err: err}
	}
	s.coord = coord

	hooks := metrics.Multi{s.usage}
	hooks = append(hooks, opts.Hooks...)
	s.observer = metrics.NewObserver(hooks, 0, logger)

	s.loop = flow.New(flow.Config{
		SessionID:   s.id,
		Registry:    s.registry,
		Coordinator: coord,
		Histories:   s.histories,
		State:       s.state,
		Providers:   opts.Providers,
		Model:       opts.Model,
	}, func(o *flow.Options) {
		if opts.MaxToolHops > 0 {
			o.MaxToolHops = opts.MaxToolHops
		}
		if opts.ToolTimeout > 0 {
			o.ToolTimeout = opts.ToolTimeout
		}
		o.Interceptors = opts.Interceptors
		o.ObserveTool = s.observer.PublishTool
		o.Logger = logger
	})

	if _, err := coord.Start(context.Background()); err != nil {
		s.observer.Close()
		return nil, &core.FatalInitializationError{Reason: "enter entry agent", Err: err}
	}

	switch {
	case opts.Transcript != nil:
		s.tr = opts.Transcript
	case opts.TranscriptDir != "":
		tr, err := transcript.Create(opts.TranscriptDir, s.id)
		if err != nil {
			s.observer.Close()
			return nil, &core.FatalInitializationError{Reason: "open transcript", Err: err}
		}
		s.tr = tr
	default:
		s.tr = transcript.Discard(s.id)
	}

	s.logger.Info("session.started", "session_id", s.id, "entry_agent", opts.EntryAgent, "agents", s.registry.IDs())
	return s, nil
}

func validate(opts *Options) error {
	if opts.Registry == nil || opts.Registry.Len() == 0 {
		return &core.FatalInitializationError{Reason: "no agents registered"}
	}
	if _, err := opts.Registry.Lookup(opts.EntryAgent); err != nil {
		return &core.FatalInitializationError{Reason: "entry agent", Err: err}
	}
	for _, id := range opts.Registry.IDs() {
		def, _ := opts.Registry.Lookup(id)
		if opts.Model == nil && def.Model == nil {
			return &core.FatalInitializationError{Reason: fmt.Sprintf("no model for agent %s", id)}
		}
		if err := opts.Providers.Require(def.RequiredActions()...); err != nil {
			return &core.FatalInitializationError{Reason: fmt.Sprintf("providers of agent %s", id), Err: err}
		}
	}
	return nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the shared state. It must not be modified while a turn runs.
func (s *Session) State() *state.State { return s.state }

// CurrentAgent returns the active agent id.
func (s *Session) CurrentAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentAgent()
}

// History returns a copy of the history held by agentID.
func (s *Session) History(agentID string) []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.histories.History(agentID)
}

// Handoffs returns the handoff log.
func (s *Session) Handoffs() []core.HandoffRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Handoffs()
}

// Terminated reports whether an agent ended the session.
func (s *Session) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coord.Terminated()
}

// Usage returns the usage aggregated so far. Exchanges still queued for the
// metrics observer are not included.
func (s *Session) Usage() metrics.Usage { return s.usage.Summary() }

// Greet makes the entry agent speak the configured greeting.
func (s *Session) Greet() *Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply := &Reply{Agent: s.state.CurrentAgent()}
	if s.opts.Greeting == "" || s.closed {
		return reply
	}
	def, err := s.registry.Lookup(reply.Agent)
	if err != nil {
		return reply
	}
	s.histories.Append(def.ID, core.NewAgentMessage(def.ID, s.opts.Greeting))
	reply.Utterances = append(reply.Utterances, utterance(def, s.opts.Greeting))
	s.record(reply)
	return reply
}

// HandleTurn processes one caller utterance. Turns are serialized.
func (s *Session) HandleTurn(ctx context.Context, input string) (*Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	start := time.Now()
	if err := s.tr.Write(string(core.RoleUser), "", input); err != nil {
		s.logger.Warn("session.transcript.failed", "error", err.Error())
	}

	res, err := s.loop.RunTurn(ctx, flow.TurnInput{Text: input})
	if errors.Is(err, flow.ErrTerminated) {
		return nil, err
	}
	if res == nil {
		res = &flow.TurnResult{Agent: s.state.CurrentAgent()}
	}

	if err != nil {
		if ctx.Err() != nil {
			s.logger.Warn("session.turn.interrupted", "agent", res.Agent, "error", err.Error())
			s.publish(input, res, time.Since(start))
			return s.toReply(res), err
		}
		s.logger.Error("session.turn.failed", "agent", res.Agent, "error", err.Error())
		def, lerr := s.registry.Lookup(s.state.CurrentAgent())
		if lerr == nil {
			s.histories.Append(def.ID, core.NewAgentMessage(def.ID, s.opts.ErrorReply))
			res.Replies = append(res.Replies, flow.Reply{AgentID: def.ID, Text: s.opts.ErrorReply, Voice: def.Persona.Voice})
		}
	}

	reply := s.toReply(res)
	s.record(reply)
	s.publish(input, res, time.Since(start))

	s.logger.Debug("session.turn.completed", "agent", reply.Agent, "replies", len(reply.Utterances), "handoffs", len(reply.Handoffs), "duration_ms", time.Since(start).Milliseconds())
	return reply, nil
}

func (s *Session) record(reply *Reply) {
	for _, u := range reply.Utterances {
		if err := s.tr.Write(string(core.RoleAgent), u.AgentID, u.Text); err != nil {
			s.logger.Warn("session.transcript.failed", "error", err.Error())
		}
	}
}

func (s *Session) publish(input string, res *flow.TurnResult, dur time.Duration) {
	replies := make([]string, len(res.Replies))
	for i, r := range res.Replies {
		replies[i] = r.Text
	}
	s.observer.PublishExchange(metrics.Exchange{
		SessionID:  s.id,
		Agent:      res.Agent,
		Input:      input,
		Replies:    replies,
		ToolCalls:  res.ToolCalls,
		Handoffs:   len(res.Handoffs),
		Usage:      res.Usage,
		Duration:   dur,
		Terminated: res.Terminated,
		Timestamp:  time.Now(),
	})
}

func (s *Session) toReply(res *flow.TurnResult) *Reply {
	reply := &Reply{Agent: res.Agent, Handoffs: res.Handoffs, Terminated: res.Terminated}
	for _, r := range res.Replies {
		u := channel.Utterance{AgentID: r.AgentID, Voice: r.Voice, Text: r.Text}
		if def, err := s.registry.Lookup(r.AgentID); err == nil {
			u.Persona = def.DisplayName()
		}
		reply.Utterances = append(reply.Utterances, u)
	}
	return reply
}

func utterance(def *agent.Definition, text string) channel.Utterance {
	return channel.Utterance{AgentID: def.ID, Persona: def.DisplayName(), Voice: def.Persona.Voice, Text: text}
}

// Run drives the session over ch until an agent ends it, the caller
// disconnects or ctx is cancelled. Input arriving during a turn is buffered.
// Replies are not delivered once ctx is done. Close always runs.
func (s *Session) Run(ctx context.Context, ch channel.Channel) (err error) {
	defer func() {
		if cerr := s.Close(context.WithoutCancel(ctx)); err == nil {
			err = cerr
		}
	}()

	if greet := s.Greet(); len(greet.Utterances) > 0 {
		for _, u := range greet.Utterances {
			if err := ch.Send(ctx, u); err != nil {
				return fmt.Errorf("send greeting: %w", err)
			}
		}
	}

	inputs := make(chan string, s.opts.InputBuffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(inputs)
		for {
			text, err := ch.Receive(gctx)
			if err != nil {
				if errors.Is(err, io.EOF) {
					s.logger.Info("session.caller.disconnected")
					return nil
				}
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("receive: %w", err)
			}
			select {
			case inputs <- text:
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		for {
			var (
				text string
				ok   bool
			)
			select {
			case <-gctx.Done():
				return nil
			case text, ok = <-inputs:
				if !ok {
					return nil
				}
			}

			reply, err := s.HandleTurn(gctx, text)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			for _, u := range reply.Utterances {
				if gctx.Err() != nil {
					return nil
				}
				if err := ch.Send(gctx, u); err != nil {
					return fmt.Errorf("send: %w", err)
				}
			}
			if reply.Terminated {
				return errEnded
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errEnded) {
		return err
	}
	return nil
}

// Close shuts the session down: it waits for an in-flight turn, drains the
// metrics observer, appends the usage summary to the transcript and closes
// it. Later calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		drained := make(chan struct{})
		go func() {
			s.observer.Close()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			s.logger.Warn("session.metrics.drain_aborted", "error", ctx.Err().Error())
		}

		usage := s.usage.Summary()
		werr := s.tr.Summary(usage.String())
		cerr := s.tr.Close()
		s.closeErr = errors.Join(werr, cerr)

		s.logger.Info("session.closed",
			"session_id", s.id,
			"duration_ms", time.Since(s.startedAt).Milliseconds(),
			"turns", usage.Turns,
			"total_tokens", usage.TotalTokens,
			"handoffs", usage.Handoffs,
			"usage", usage.String(),
		)
	})
	return s.closeErr
}
