package client

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
)

// Level of a toast.
type Level string

const (
	LevelInfo Level = "info"
	LevelWarn Level = "warn"
)

// Toast is a transient notice.
type Toast struct {
	At    time.Time `json:"at"`
	Level Level     `json:"level"`
	Text  string    `json:"text"`
}

// Notifier keeps recent toasts and the persistent diagnostic overlay.
type Notifier struct {
	mu      sync.Mutex
	clock   Clock
	metrics *Metrics
	ring    []Toast
	next    int
	full    bool
	desktop bool
	diag    string
	diagAt  time.Time
	hooks   []func(Toast)
}

// NewNotifier keeps the last history toasts. desktop mirrors warnings to
// the desktop when a display is available.
func NewNotifier(history int, desktop bool, clock Clock, m *Metrics) *Notifier {
	if history <= 0 {
		history = 32
	}
	if clock == nil {
		clock = RealClock()
	}
	if m == nil {
		m = &Metrics{}
	}
	return &Notifier{clock: clock, metrics: m, ring: make([]Toast, history), desktop: desktop}
}

// OnToast registers a hook called for every toast.
func (n *Notifier) OnToast(f func(Toast)) {
	n.mu.Lock()
	n.hooks = append(n.hooks, f)
	n.mu.Unlock()
}

// Toast shows an informational notice.
func (n *Notifier) Toast(format string, args ...any) { n.push(LevelInfo, format, args...) }

// Warn shows a notice about a recoverable failure.
func (n *Notifier) Warn(format string, args ...any) { n.push(LevelWarn, format, args...) }

func (n *Notifier) push(level Level, format string, args ...any) {
	text := format
	if len(args) > 0 {
		text = fmt.Sprintf(format, args...)
	}
	t := Toast{At: n.clock.Now(), Level: level, Text: text}

	n.mu.Lock()
	n.ring[n.next] = t
	n.next = (n.next + 1) % len(n.ring)
	if n.next == 0 {
		n.full = true
	}
	hooks := append([]func(Toast){}, n.hooks...)
	desktop := n.desktop
	n.mu.Unlock()

	n.metrics.IncToast()
	if level == LevelWarn {
		Log.Warnf("toast: %s", text)
		if desktop {
			notifyDesktop("pkworld", text)
		}
	} else {
		Log.Infof("toast: %s", text)
	}
	for _, h := range hooks {
		h(t)
	}
}

// Recent returns the kept toasts, oldest first.
func (n *Notifier) Recent() []Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Toast
	if n.full {
		out = append(out, n.ring[n.next:]...)
	}
	return append(out, n.ring[:n.next]...)
}

// Last returns the newest toast.
func (n *Notifier) Last() (Toast, bool) {
	r := n.Recent()
	if len(r) == 0 {
		return Toast{}, false
	}
	return r[len(r)-1], true
}

// ShowDiag raises the persistent overlay.
func (n *Notifier) ShowDiag(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	n.mu.Lock()
	changed := n.diag != msg
	n.diag, n.diagAt = msg, n.clock.Now()
	n.mu.Unlock()
	if changed {
		Log.Errorf("diag: %s", msg)
	}
}

// HideDiag clears the overlay.
func (n *Notifier) HideDiag() {
	n.mu.Lock()
	n.diag = ""
	n.mu.Unlock()
}

// Diag returns the overlay text and whether it is shown.
func (n *Notifier) Diag() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.diag, n.diag != ""
}

// notifyDesktop is best-effort; headless Linux has nowhere to show it.
func notifyDesktop(title, body string) {
	if body == "" {
		return
	}
	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return
	}
	if err := beeep.Notify(title, body, ""); err != nil {
		Log.Debugf("desktop notify: %v", err)
	}
}
