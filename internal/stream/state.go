// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import "sync"

// State is the lifecycle state of a Session.
type State int32

const (
	// StateIdle is a constructed session that has not dispatched its request.
	StateIdle State = iota
	// StateConnected means the request was dispatched and no bytes arrived yet.
	StateConnected
	// StateDraining means bytes are being framed, classified and decoded.
	StateDraining
	// StateFinished is terminal.
	StateFinished
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateDraining:
		return "draining"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// gate is a one-shot completion signal: open releases every waiter and later
// calls are no-ops.
type gate struct {
	once  sync.Once
	ch    chan struct{}
	opens int
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

// open signals the gate. It reports whether this call was the one that
// opened it.
func (g *gate) open() bool {
	opened := false
	g.once.Do(func() {
		g.opens++
		opened = true
		close(g.ch)
	})
	return opened
}

// wait blocks until the gate is open.
func (g *gate) wait() {
	<-g.ch
}

