package api

import (
	"sync"
	"time"

	"github.com/dgallion1/planmark/internal/editor"
	"github.com/dgallion1/planmark/internal/errreport"
	"github.com/dgallion1/planmark/internal/plan"
)

const mailboxSize = 256

// Notification is one upward hook call, queued until the client polls.
type Notification struct {
	Seq        uint64           `json:"seq"`
	Kind       string           `json:"kind"`
	Time       time.Time        `json:"time"`
	Annotation *plan.Annotation `json:"annotation,omitempty"`
	Selection  *plan.Selection  `json:"selection,omitempty"`
	Error      *errreport.Event `json:"error,omitempty"`
}

const (
	NoticeCommitted = "annotation_committed"
	NoticeSelection = "selection_changed"
	NoticeError     = "error"
)

type mailbox struct {
	mu      sync.Mutex
	seq     uint64
	pending []Notification
	dropped int
}

func (m *mailbox) push(n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	n.Seq = m.seq
	n.Time = time.Now()
	m.pending = append(m.pending, n)
	if over := len(m.pending) - mailboxSize; over > 0 {
		m.pending = append(m.pending[:0:0], m.pending[over:]...)
		m.dropped += over
	}
}

// drain returns and clears the queued notifications.
func (m *mailbox) drain() ([]Notification, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, dropped := m.pending, m.dropped
	m.pending, m.dropped = nil, 0
	if out == nil {
		out = []Notification{}
	}
	return out, dropped
}

// hooks returns session hooks that queue into m.
func (m *mailbox) hooks() editor.Hooks {
	return editor.Hooks{
		OnAnnotationCommitted: func(a plan.Annotation) {
			m.push(Notification{Kind: NoticeCommitted, Annotation: &a})
		},
		OnSelectionChanged: func(sel plan.Selection) {
			m.push(Notification{Kind: NoticeSelection, Selection: &sel})
		},
		OnError: func(ev errreport.Event) {
			m.push(Notification{Kind: NoticeError, Error: &ev})
		},
	}
}

// mailboxes maps session ids to their mailbox.
type mailboxes struct {
	mu    sync.Mutex
	boxes map[string]*mailbox
}

func newMailboxes() *mailboxes {
	return &mailboxes{boxes: make(map[string]*mailbox)}
}

func (m *mailboxes) put(id string, b *mailbox) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boxes[id] = b
}

func (m *mailboxes) get(id string) *mailbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boxes[id]
}

func (m *mailboxes) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.boxes, id)
}

// prune drops mailboxes whose session is gone.
func (m *mailboxes) prune(alive func(id string) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id := range m.boxes {
		if !alive(id) {
			delete(m.boxes, id)
			n++
		}
	}
	return n
}
