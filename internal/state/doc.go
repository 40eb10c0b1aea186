// Package state holds the submission state shared between the controller and
// the terminal UI.
//
// # Overview
//
// The controller is the only writer. Every transition replaces the whole State
// value through Store.Update, and the UI either reads Store.Snapshot or
// receives each new value through Store.Subscribe:
//
//	Writer (submit.Controller):        Reader (ui.Model):
//	┌──────────────────────┐          ┌──────────────────────┐
//	│ store.Update(fn)     │─────────→│ subscriber(State)    │
//	│   probe, upload,     │ (ordered)│   program.Send(msg)  │
//	│   terminal phase     │          │   render             │
//	└──────────────────────┘          └──────────────────────┘
//
// # Phases
//
//	idle → probing → uploading → succeeded
//	         │            └──────→ failed
//	         └───────────────────→ failed
//
// Busy is derived from the phase, so a submission that reaches either terminal
// phase can never leave the busy indicator set.
//
// # Generations
//
// State.Generation changes whenever a submission starts, the user resets, or a
// new file is chosen. Writers pass an Update closure that compares the
// generation they started with against the current one and declines the write
// when they differ; this is how late results from a superseded submission are
// dropped.
//
// # Copying
//
// Snapshot and subscriber values are copies. The Result's slices are cloned so
// a reader cannot alter what another reader sees.
package state
