// Package tray provides the optional desktop tray menu for the booth.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/photobooth/internal/booth"
)

// Tray is the system tray menu: arm/pause, last status, open booth, quit.
type Tray struct {
	onToggle func(armed bool)
	onOpen   func()
	onQuit   func()
	armed    bool
	status   string
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuStatus *systray.MenuItem
}

// New creates a Tray that starts armed.
func New() *Tray {
	return &Tray{
		armed:  true,
		status: statusTitle(booth.Status{}),
	}
}

// OnToggle sets the callback run when the user arms or pauses the booth.
func (t *Tray) OnToggle(fn func(armed bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback run for "Open Booth...".
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Photobooth")
	systray.SetTooltip("Gesture-triggered photo booth")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(armedTitle(t.armed), "Arm or pause the gesture trigger")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem(t.status, "Booth status")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Booth...", "Open the booth in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Photobooth")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// handleToggle flips the armed state and reports it.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.armed = !t.armed
	armed := t.armed
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(armedTitle(armed))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(armed)
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetStatus shows the latest booth message.
func (t *Tray) SetStatus(s booth.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = statusTitle(s)
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(t.status)
	}
}

// StatusTitle returns the text of the status item.
func (t *Tray) StatusTitle() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// IsArmed returns the current armed state.
func (t *Tray) IsArmed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.armed
}

func armedTitle(armed bool) string {
	if armed {
		return "● Armed"
	}
	return "○ Paused"
}

func statusTitle(s booth.Status) string {
	if s.Message == "" {
		return "Status: idle"
	}
	return "Status: " + s.Message
}
