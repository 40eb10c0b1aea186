// Package ui is the Bubble Tea front end for genrescope.
//
// The UI renders whatever state.State the current submit.Controller has
// published and turns keys into controller intents. It holds no submission
// logic of its own.
//
// # State Delivery
//
// The model subscribes to the controller's store with a callback that does a
// non-blocking send on a one-slot channel. A single listening command waits on
// that channel and, when woken, the model reads Snapshot() itself:
//
//	controller ──Update──> store ──callback──> nudge (chan, cap 1)
//	                                              │
//	        Update(nudgeMsg) <── listenCmd() <────┘
//	        m.snapshot = ctrl.Snapshot(); re-arm listenCmd
//
// Bursts of progress transitions therefore collapse into one redraw and the
// store's writer never blocks on the terminal.
//
// Submissions and connection tests run inside tea.Cmd goroutines, so network
// I/O never blocks the event loop.
//
// # Profiles
//
// Options.Connect builds a controller per backend profile. Switching profile
// resets the old controller, which cancels its in-flight work, then moves the
// chosen file to the new one.
//
// # Files
//
//   - model.go: Model, Options, Update loop, profile switching, Run
//   - commands.go: messages and tea.Cmd constructors
//   - render.go: header, file card, progress, result and error cards, log pane, help
//   - keys.go: key bindings and help.KeyMap
//   - theme.go: color themes (Nightfox, Kanagawa, Slate) and Lipgloss styles
//   - style_helpers.go: BgStyle for gap-free background runs
//   - strings.go: truncation and padding helpers
package ui
