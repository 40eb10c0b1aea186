package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tunelab/genrescope/internal/media"
	"github.com/tunelab/genrescope/internal/prefs"
	"github.com/tunelab/genrescope/internal/state"
	"github.com/tunelab/genrescope/internal/submit"
)

const logPaneLines = 200

// Options configures the UI.
type Options struct {
	Context context.Context

	// Connect builds a controller for the named backend profile. It is called
	// once at startup and again whenever the user switches profile.
	Connect  func(profile string) (*submit.Controller, error)
	Profiles []string
	Profile  string

	LogPath   string
	PrefsPath string
	ThemeName string
	LastDir   string
	Logger    *slog.Logger
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	connect   func(string) (*submit.Controller, error)
	logger    *slog.Logger
	profiles  []string
	logPath   string
	prefsPath string
	lastDir   string

	// Backend session
	profile     string
	ctrl        *submit.Controller
	unsubscribe func()
	nudge       chan struct{}

	// UI state
	theme    Theme
	keys     keyMap
	help     help.Model
	width    int
	height   int
	ready    bool
	showHelp bool
	showLogs bool
	notice   string

	// logTicking guards against a second refresh loop after a quick toggle.
	logTicking bool

	// Data state
	snapshot state.State

	// Components
	picker     filepicker.Model
	pickerOpen bool
	spinner    spinner.Model
	progress   progress.Model
	logView    viewport.Model
	logLines   []string
}

// New creates the model and connects to the initial profile.
func New(opts Options) (Model, error) {
	if opts.Connect == nil {
		return Model{}, errors.New("ui: Connect is required")
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	picker := filepicker.New()
	picker.AllowedTypes = media.Extensions()
	picker.ShowHidden = false

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := Model{
		ctx:       ctx,
		connect:   opts.Connect,
		logger:    logger,
		profiles:  opts.Profiles,
		logPath:   opts.LogPath,
		prefsPath: prefsPath,
		lastDir:   opts.LastDir,
		nudge:     make(chan struct{}, 1),
		theme:     GetTheme(opts.ThemeName),
		keys:      DefaultKeyMap(),
		help:      help.New(),
		picker:    picker,
		spinner:   spin,
		progress:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		logView:   viewport.New(80, 10),
	}
	if len(m.profiles) == 0 && opts.Profile != "" {
		m.profiles = []string{opts.Profile}
	}
	if err := m.switchProfile(opts.Profile); err != nil {
		return Model{}, err
	}
	return m, nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		listenCmd(m.ctx, m.nudge),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.help.Width = msg.Width
		m.progress.Width = clampInt(msg.Width-16, 10, 60)
		m.logView.Width = maxInt(msg.Width-4, 20)
		m.logView.Height = m.logPaneHeight()
		m.logView.SetContent(m.renderLogLines())
		// The picker sizes itself from the window when AutoHeight is on.
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd

	case nudgeMsg:
		wasBusy := m.snapshot.Busy() || m.snapshot.Diagnostic.Running
		m.snapshot = m.ctrl.Snapshot()
		cmds := []tea.Cmd{listenCmd(m.ctx, m.nudge)}
		if (m.snapshot.Busy() || m.snapshot.Diagnostic.Running) && !wasBusy {
			cmds = append(cmds, m.spinner.Tick)
		}
		if m.showLogs {
			cmds = append(cmds, readLogsCmd(m.logPath))
		}
		return m, tea.Batch(cmds...)

	case submitDoneMsg:
		var verr *submit.ValidationError
		if errors.As(msg.err, &verr) {
			m.notice = verr.Message
		}
		return m, nil

	case spinner.TickMsg:
		if !m.snapshot.Busy() && !m.snapshot.Diagnostic.Running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case logLinesMsg:
		m.logLines = msg
		m.logView.SetContent(m.renderLogLines())
		m.logView.GotoBottom()
		return m, nil

	case logTickMsg:
		if !m.showLogs {
			m.logTicking = false
			return m, nil
		}
		return m, tea.Batch(readLogsCmd(m.logPath), logTickCmd())
	}

	// Directory listings and other picker-internal messages.
	if m.pickerOpen {
		return m.updatePicker(msg)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	if m.pickerOpen {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.pickerOpen = false
			return m, nil
		case msg.String() == "ctrl+c":
			return m.quit()
		}
		return m.updatePicker(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Open):
		m.notice = ""
		m.pickerOpen = true
		m.picker.CurrentDirectory = m.startDir()
		return m, m.picker.Init()

	case key.Matches(msg, m.keys.Submit):
		// Mirrors a disabled submit button; reset supersedes instead.
		if m.snapshot.Busy() {
			return m, nil
		}
		m.notice = ""
		return m, submitCmd(m.ctx, m.ctrl, m.snapshot.File)

	case key.Matches(msg, m.keys.Reset):
		m.notice = ""
		m.ctrl.Reset()
		return m, nil

	case key.Matches(msg, m.keys.Test):
		if m.snapshot.Diagnostic.Running {
			return m, nil
		}
		return m, testCmd(m.ctx, m.ctrl)

	case key.Matches(msg, m.keys.Profile):
		next := nextProfile(m.profiles, m.profile)
		if next == m.profile {
			return m, nil
		}
		if err := m.switchProfile(next); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.notice = "Switched to profile " + next
		return m, nil

	case key.Matches(msg, m.keys.ToggleLogs):
		m.showLogs = !m.showLogs
		m.logView.Height = m.logPaneHeight()
		if !m.showLogs {
			return m, nil
		}
		if m.logTicking {
			return m, readLogsCmd(m.logPath)
		}
		m.logTicking = true
		return m, tea.Batch(readLogsCmd(m.logPath), logTickCmd())

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		name := m.theme.Name
		if err := prefs.Update(m.prefsPath, func(p *prefs.Prefs) { p.Theme = name }); err != nil {
			m.logger.Warn("save theme preference failed", "err", err)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		if !m.showLogs {
			return m, nil
		}
		var cmd tea.Cmd
		m.logView, cmd = m.logView.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.pickerOpen = false
		m.choose(path)
		return m, cmd
	}
	// Extension filtering in the picker is case-sensitive; media.Open is not.
	if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
		m.choose(path)
		if m.snapshot.File != nil && m.snapshot.File.Path == path {
			m.pickerOpen = false
		}
		return m, cmd
	}
	return m, cmd
}

// choose validates path and hands it to the controller.
func (m *Model) choose(path string) {
	f, err := media.Open(path)
	if err != nil {
		var unsupported *media.UnsupportedError
		if errors.As(err, &unsupported) {
			m.notice = unsupported.Message()
		} else {
			m.notice = err.Error()
		}
		return
	}
	m.notice = ""
	m.ctrl.Choose(f)
	m.snapshot = m.ctrl.Snapshot()

	dir := filepath.Dir(f.Path)
	m.lastDir = dir
	if err := prefs.Update(m.prefsPath, func(p *prefs.Prefs) { p.LastDir = dir }); err != nil {
		m.logger.Warn("save last directory failed", "err", err)
	}
}

// switchProfile connects to name and moves the chosen file over. The old
// controller is reset so its in-flight work is cancelled and discarded.
func (m *Model) switchProfile(name string) error {
	ctrl, err := m.connect(name)
	if err != nil {
		return fmt.Errorf("connect profile %q: %w", name, err)
	}

	file := m.snapshot.File
	if m.ctrl != nil {
		m.ctrl.Reset()
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
	}

	nudge := m.nudge
	m.unsubscribe = ctrl.Store().Subscribe(func(state.State) {
		select {
		case nudge <- struct{}{}:
		default:
		}
	})
	m.ctrl = ctrl
	m.profile = name
	if file != nil {
		ctrl.Choose(file)
	}
	m.snapshot = ctrl.Snapshot()

	if err := prefs.Update(m.prefsPath, func(p *prefs.Prefs) { p.Profile = name }); err != nil {
		m.logger.Warn("save profile preference failed", "err", err)
	}
	m.logger.Info("profile selected", "profile", name)
	return nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.close()
	return m, tea.Quit
}

// close cancels any in-flight submission and stops listening for state.
func (m Model) close() {
	if m.ctrl != nil {
		m.ctrl.Reset()
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) startDir() string {
	if m.lastDir != "" {
		return m.lastDir
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func (m Model) logPaneHeight() int {
	if !m.showLogs {
		return 0
	}
	return clampInt(m.height/3, 5, 20)
}

// nextProfile returns the profile after current, wrapping around.
func nextProfile(profiles []string, current string) string {
	if len(profiles) == 0 {
		return current
	}
	for i, name := range profiles {
		if name == current {
			return profiles[(i+1)%len(profiles)]
		}
	}
	return profiles[0]
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m, err := New(opts)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		fm.close()
	} else {
		m.close()
	}
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
