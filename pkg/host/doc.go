// Package host implements the component runtime that store bindings run
// inside: mounted component instances, hook slots, dependency-keyed
// effects, and render scheduling.
//
// A Component renders to an HTML fragment. Mounting it produces an
// Instance, which owns the per-component hook state and a render token
// that changes every time a re-render is requested:
//
//	loop := host.NewLoop()
//	inst, err := loop.Mount(host.FuncComponent(func() string {
//	    return "<p>hello</p>"
//	}))
//
// Hooks (UseSlot, UseEffect, UseHandler) resolve the instance being
// rendered through a per-goroutine tracking context, so components are
// plain functions with no threading of runtime handles.
//
// # Schedulers
//
// An Instance does not render itself; it asks its Scheduler to. The Loop
// in this package is the in-process scheduler used by tests and embedded
// hosts. A served host provides its own Scheduler (see pkg/live).
//
// Invalidate may be called from any goroutine; rendering always happens
// on the scheduler's goroutine. Everything else on an Instance follows
// the single-renderer contract: one goroutine renders, commits, and
// dispatches for a given instance.
package host
