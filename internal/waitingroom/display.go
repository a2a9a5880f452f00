package waitingroom

import (
	"context"
	"sync"
	"time"

	"hospital-waiting-room/internal/models"
	"hospital-waiting-room/internal/relay"

	"github.com/rs/zerolog/log"
)

// Source returns today's visits and the desk's current visit id
type Source interface {
	WaitingRoom(ctx context.Context) ([]models.Visit, *uint, error)
}

// Display is the server-side waiting-room screen. It subscribes to the
// relay before loading so no event falls between fetch and subscribe.
type Display struct {
	model   *ReadModel
	hub     *relay.Hub
	source  Source
	refresh time.Duration
	now     func() time.Time

	mu      sync.Mutex
	removed map[uint]struct{}
	day     string
}

func NewDisplay(hub *relay.Hub, source Source, refresh time.Duration) *Display {
	return &Display{
		model:   NewReadModel(),
		hub:     hub,
		source:  source,
		refresh: refresh,
		now:     time.Now,
		removed: make(map[uint]struct{}),
	}
}

// Run keeps the display current until ctx ends or the relay closes.
// The relay subscription is released on return.
func (d *Display) Run(ctx context.Context) error {
	sub := d.hub.Subscribe()
	defer sub.Close()

	if err := d.Reload(ctx); err != nil {
		log.Error().Err(err).Msg("Waiting room initial load failed")
	}

	var tick <-chan time.Time
	if d.refresh > 0 {
		ticker := time.NewTicker(d.refresh)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			d.apply(ev)
		case <-tick:
			if err := d.Reload(ctx); err != nil {
				log.Error().Err(err).Msg("Waiting room reload failed")
			}
		}
	}
}

// Reload refetches today's visits. Visits removed from the screen earlier
// the same day stay hidden.
func (d *Display) Reload(ctx context.Context) error {
	visits, current, err := d.source.WaitingRoom(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	today := d.now().Format("2006-01-02")
	if today != d.day {
		d.day = today
		d.removed = make(map[uint]struct{})
	}

	d.model.Load(visits, current)
	for id := range d.removed {
		d.model.Apply(relay.NewVisitRemoved(id))
	}
	return nil
}

func (d *Display) apply(ev relay.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Kind {
	case relay.EventVisitRemoved:
		d.removed[ev.VisitID] = struct{}{}
	case relay.EventVisitNotified:
		delete(d.removed, ev.VisitID)
	}
	d.model.Apply(ev)
}

// Snapshot returns what the screen currently shows
func (d *Display) Snapshot() Snapshot {
	return d.model.Snapshot()
}
