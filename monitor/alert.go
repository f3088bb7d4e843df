package monitor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrAlertNotFound is returned for unknown or evicted alert ids.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrAlreadyAcknowledged is returned when acknowledging twice.
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
)

// AlertSource distinguishes pattern alerts from threshold alerts.
type AlertSource string

const (
	SourcePattern   AlertSource = "pattern"
	SourceThreshold AlertSource = "threshold"
)

// Alert is a raised security alert. It starts unacknowledged and moves to
// acknowledged exactly once.
type Alert struct {
	ID          string         `json:"id"`
	Source      AlertSource    `json:"source"`
	Kind        string         `json:"kind"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	IP          string         `json:"ip,omitempty"`
	EventCount  int            `json:"eventCount"`
	WindowStart time.Time      `json:"windowStart"`
	WindowEnd   time.Time      `json:"windowEnd"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`

	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
}

func newAlertID(now time.Time) string {
	return fmt.Sprintf("alert_%d_%s", now.UnixNano(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}

func patternAlert(p Pattern, windowStart, now time.Time) *Alert {
	return &Alert{
		ID:          newAlertID(now),
		Source:      SourcePattern,
		Kind:        string(p.Type),
		Severity:    p.Severity,
		Title:       "Suspicious activity: " + strings.ReplaceAll(string(p.Type), "_", " "),
		Message:     p.Description,
		IP:          p.IP,
		EventCount:  p.EventCount,
		WindowStart: windowStart,
		WindowEnd:   now,
		Details:     p.Details,
		CreatedAt:   now,
	}
}

func (a *Alert) clone() *Alert {
	c := *a
	if a.AcknowledgedAt != nil {
		at := *a.AcknowledgedAt
		c.AcknowledgedAt = &at
	}
	return &c
}

// AlertStore keeps the most recent alerts in memory. The oldest alerts are
// evicted once capacity is reached.
type AlertStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *Alert]
}

// NewAlertStore returns a store holding up to capacity alerts.
func NewAlertStore(capacity int) (*AlertStore, error) {
	if capacity <= 0 {
		capacity = 500
	}
	cache, err := lru.New[string, *Alert](capacity)
	if err != nil {
		return nil, err
	}
	return &AlertStore{cache: cache}, nil
}

// Add stores a copy of a.
func (s *AlertStore) Add(a *Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(a.ID, a.clone())
}

// Get returns a copy of the alert with id.
func (s *AlertStore) Get(id string) (*Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.cache.Peek(id)
	if !ok {
		return nil, false
	}
	return a.clone(), true
}

// Acknowledge marks id acknowledged by by at at.
func (s *AlertStore) Acknowledge(id, by string, at time.Time) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.cache.Peek(id)
	if !ok {
		return nil, ErrAlertNotFound
	}
	if a.Acknowledged {
		return nil, ErrAlreadyAcknowledged
	}
	a.Acknowledged = true
	a.AcknowledgedBy = by
	a.AcknowledgedAt = &at
	return a.clone(), nil
}

// List returns copies of the stored alerts newest first. With activeOnly
// set, acknowledged alerts are skipped.
func (s *AlertStore) List(activeOnly bool) []*Alert {
	s.mu.Lock()
	values := s.cache.Values()
	out := make([]*Alert, 0, len(values))
	for _, a := range values {
		if activeOnly && a.Acknowledged {
			continue
		}
		out = append(out, a.clone())
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of stored alerts.
func (s *AlertStore) Len() int {
	return s.cache.Len()
}
