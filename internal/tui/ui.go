// Package tui renders the host window: a status bar over the live
// diagnostics feed. Closing the window is the shutdown trigger for the
// backend sidecar.
package tui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/quickdock/quickdock/internal/diag"
)

const (
	logsTitle           = "Diagnostics"
	defaultLogRetention = 500
	statusInterval      = time.Second
)

// Status is a snapshot of the supervised backend, rendered in the header.
type Status struct {
	PID     int
	Running bool
	BaseURL string
}

// StatusFunc supplies the current backend status.
type StatusFunc func() Status

// Option configures UI behaviour.
type Option func(*UI)

// WithMaxLogs sets the maximum number of diagnostic lines retained.
func WithMaxLogs(n int) Option {
	return func(u *UI) {
		if n > 0 {
			u.maxLogs = n
		}
	}
}

// UI coordinates the interactive host window backed by tview.
type UI struct {
	app    *tview.Application
	header *tview.TextView
	logs   *tview.TextView

	records <-chan diag.Record
	status  StatusFunc

	maxLogs int

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a UI over the provided diagnostics feed.
func New(records <-chan diag.Record, status StatusFunc, opts ...Option) *UI {
	app := tview.NewApplication()

	header := tview.NewTextView().SetDynamicColors(true)
	header.SetBorder(true).SetTitle("QuickDock")

	logs := tview.NewTextView().SetDynamicColors(true).SetWrap(false).SetMaxLines(defaultLogRetention)
	logs.SetBorder(true).SetTitle(logsTitle)
	logs.SetChangedFunc(func() {
		app.Draw()
	})

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, 3, 0, false).
		AddItem(logs, 0, 1, true)

	ui := &UI{
		app:     app,
		header:  header,
		logs:    logs,
		records: records,
		status:  status,
		maxLogs: defaultLogRetention,
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(ui)
	}
	logs.SetMaxLines(ui.maxLogs)

	app.SetRoot(flex, true)
	app.SetInputCapture(ui.handleKey)

	return ui
}

// Done returns a channel that is closed when the window stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Run starts the tview application and processes incoming records until the
// window is closed or the provided context is cancelled. Returning from Run
// is the window-destroy event.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	u.cancelMu.Lock()
	u.cancel = cancel
	u.cancelMu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.consume(ctx)
	}()

	go func() {
		<-ctx.Done()
		u.Stop()
	}()

	err := u.app.Run()

	u.cancelMu.Lock()
	cancel = u.cancel
	u.cancel = nil
	u.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	u.wg.Wait()
	u.Stop()

	return err
}

// Stop terminates the window loop and releases resources.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.cancelMu.Lock()
		cancel := u.cancel
		u.cancel = nil
		u.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) consume(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	u.refreshHeader()

	records := u.records
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-records:
			if !ok {
				records = nil
				continue
			}
			u.appendRecord(rec)
		case <-ticker.C:
			u.refreshHeader()
		}
	}
}

func (u *UI) appendRecord(rec diag.Record) {
	line := formatRecord(rec)
	u.app.QueueUpdateDraw(func() {
		fmt.Fprintln(u.logs, line)
	})
}

func formatRecord(rec diag.Record) string {
	color := "white"
	switch rec.Level {
	case "warn":
		color = "yellow"
	case "error":
		color = "red"
	}
	line := fmt.Sprintf("[gray]%s[-] [%s]%-5s[-] %s",
		rec.Timestamp.Format("15:04:05"), color, rec.Level, tview.Escape(rec.Message))
	if rec.Err != "" {
		line += fmt.Sprintf(" [red]%s[-]", tview.Escape(rec.Err))
	}
	return line
}

func (u *UI) refreshHeader() {
	if u.status == nil {
		return
	}
	st := u.status()
	state := "[red]stopped[-]"
	if st.Running {
		state = fmt.Sprintf("[green]running[-] pid %d", st.PID)
	}
	text := fmt.Sprintf("backend %s  |  %s  |  press q to quit", state, st.BaseURL)
	u.app.QueueUpdateDraw(func() {
		u.header.SetText(text)
	})
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyCtrlC, tcell.KeyEscape:
		u.Stop()
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			u.Stop()
			return nil
		}
	}
	return event
}
