// Package concierge provides a high-level façade over the doorman agents, the
// session core and the runner. Most applications interact with this package by:
//  1. Creating a Concierge via New() with a reasoning model (and optionally a
//     durable repository, real notifier and door controller)
//  2. Serving callers over a channel (Serve) or driving a scripted
//     conversation synchronously (Converse)
//
// Unset dependencies default to safe local implementations: a seeded
// in-memory repository and logging notifier and door.
package concierge

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/concierge/action"
	"github.com/hupe1980/concierge/channel"
	"github.com/hupe1980/concierge/doorman"
	"github.com/hupe1980/concierge/logging"
	"github.com/hupe1980/concierge/model"
	"github.com/hupe1980/concierge/runner"
	"github.com/hupe1980/concierge/session"
	"github.com/hupe1980/concierge/store"
	"github.com/hupe1980/concierge/store/memory"
)

// Options configures the Concierge instance.
type Options struct {
	// Model is the default reasoning engine. Required.
	Model model.Model

	// Repository defaults to a seeded in-memory store.
	Repository store.Repository
	Notifier   action.Notifier
	Door       action.Door
	// OwnerContact receives rental inquiry notifications.
	OwnerContact string

	// Agents configures the doorman agent set.
	Agents []func(o *doorman.Options)
	// Session applies further overrides to every session.
	Session []func(o *session.Options)

	// MaxConcurrentSessions limits sessions hosted by Serve.
	MaxConcurrentSessions int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Concierge is the high-level façade aggregating the doorman agents and the runner.
type Concierge struct {
	opts      Options
	providers action.Set
	host      *runner.Runner
}

// New creates a Concierge with optional overrides.
func New(optFns ...func(o *Options)) (*Concierge, error) {
	opts := Options{
		MaxConcurrentSessions: 10,
		Logger:                logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Model == nil {
		return nil, errors.New("concierge: a model is required")
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Repository == nil {
		opts.Repository = memory.NewSeeded()
	}
	if opts.Notifier == nil {
		opts.Notifier = &action.LogNotifier{Logger: opts.Logger}
	}
	if opts.Door == nil {
		opts.Door = &action.LogDoor{Logger: opts.Logger}
	}

	c := &Concierge{
		opts: opts,
		providers: doorman.Providers(action.Dependencies{
			Repo:         opts.Repository,
			Notifier:     opts.Notifier,
			Door:         opts.Door,
			OwnerContact: opts.OwnerContact,
		}),
	}
	c.host = runner.New(c.NewSession, func(o *runner.Options) {
		o.MaxConcurrentSessions = opts.MaxConcurrentSessions
		o.Logger = opts.Logger
	})
	return c, nil
}

// NewSession creates a session over a fresh doorman registry. An empty id
// selects a random one.
func (c *Concierge) NewSession(id string) (*session.Session, error) {
	reg, err := doorman.NewRegistry(c.opts.Agents...)
	if err != nil {
		return nil, fmt.Errorf("build agents: %w", err)
	}
	fns := append([]func(o *session.Options){func(o *session.Options) {
		o.ID = id
		o.Registry = reg
		o.EntryAgent = doorman.Main
		o.Model = c.opts.Model
		o.Providers = c.providers
		o.Greeting = doorman.Greeting
		o.Logger = c.opts.Logger
	}}, c.opts.Session...)
	return session.New(fns...)
}

// Serve hosts a session over ch in the background. The returned channel
// yields the session result once it has ended.
func (c *Concierge) Serve(ctx context.Context, id string, ch channel.Channel) (string, <-chan error, error) {
	return c.host.Start(ctx, id, ch)
}

// Cancel stops a served session.
func (c *Concierge) Cancel(id string) error { return c.host.Cancel(id) }

// Converse is a synchronous helper that plays inputs through a new session
// and returns one reply per handled input. It stops early once an agent ends
// the session. The session is closed before returning.
func (c *Concierge) Converse(ctx context.Context, id string, inputs ...string) (replies []*session.Reply, err error) {
	sess, err := c.NewSession(id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(context.WithoutCancel(ctx)); err == nil {
			err = cerr
		}
	}()

	for _, in := range inputs {
		reply, err := sess.HandleTurn(ctx, in)
		if err != nil {
			return replies, err
		}
		replies = append(replies, reply)
		if reply.Terminated {
			break
		}
	}
	return replies, nil
}

// Shutdown stops every served session.
func (c *Concierge) Shutdown(ctx context.Context) error { return c.host.Shutdown(ctx) }
