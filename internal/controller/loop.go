package controller

import (
	"context"
	"sync"
)

// Settle runs cmd, and every Cmd its messages produce, on the calling
// goroutine until none remain. It is the one-shot driver used by the CLI.
// Tick messages are not followed.
func Settle(c *Controller, cmd Cmd) {
	queue := []Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch m := next().(type) {
		case nil:
		case BatchMsg:
			queue = append(queue, m...)
		case tickMsg:
		default:
			queue = append(queue, c.Update(m))
		}
	}
}

// Loop is the long-running driver. Cmds run on their own goroutines; their
// messages, and actions submitted with Send, are applied one at a time on
// the goroutine that called Run.
type Loop struct {
	c       *Controller
	render  func(View)
	msgs    chan Msg
	actions chan func(*Controller) Cmd
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewLoop returns a Loop over c. render, when non-nil, is called with a
// fresh View after every state change.
func NewLoop(c *Controller, render func(View)) *Loop {
	return &Loop{
		c:       c,
		render:  render,
		msgs:    make(chan Msg),
		actions: make(chan func(*Controller) Cmd),
		done:    make(chan struct{}),
	}
}

// Send queues action to run on the loop goroutine. It returns false once
// the loop has stopped.
func (l *Loop) Send(action func(*Controller) Cmd) bool {
	select {
	case l.actions <- action:
		return true
	case <-l.done:
		return false
	}
}

// Run mounts the page, runs initial alongside the first fetch and processes
// messages until ctx is cancelled. The controller is closed on return.
func (l *Loop) Run(ctx context.Context, initial ...Cmd) error {
	l.exec(Batch(append([]Cmd{l.c.Init()}, initial...)...))
	l.emit()
	for {
		select {
		case <-ctx.Done():
			l.c.Close()
			close(l.done)
			l.wg.Wait()
			return ctx.Err()
		case msg := <-l.msgs:
			l.exec(l.c.Update(msg))
			l.emit()
		case act := <-l.actions:
			l.exec(act(l.c))
			l.emit()
		}
	}
}

func (l *Loop) exec(cmd Cmd) {
	if cmd == nil {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		switch m := cmd().(type) {
		case nil:
		case BatchMsg:
			for _, c := range m {
				l.exec(c)
			}
		default:
			select {
			case l.msgs <- m:
			case <-l.done:
			}
		}
	}()
}

func (l *Loop) emit() {
	if l.render != nil {
		l.render(l.c.View())
	}
}
