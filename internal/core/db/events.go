package db

import "github.com/rs/zerolog/log"

// The DB emits typed events after websites are created, updated, deleted or
// get new images. Listeners run synchronously in the caller's goroutine, so
// anything slow (like fetching images) should be handed off to a queue:
//
//	db.RegisterEventListener(db.OnWebsiteCreatedEvent, func(event db.Event) error {
//	    ev := event.(db.WebsiteCreatedEvent)
//	    queue <- ev.Website
//	    return nil
//	})

// Event is the common interface for all database events.
type Event interface {
	Kind() EventKind
}

// EventKind represents all the kinds of events that can be emitted by the DB.
type EventKind int

const (
	// OnWebsiteCreatedEvent is emitted when a website is created.
	OnWebsiteCreatedEvent EventKind = iota
	// OnWebsiteUpdatedEvent is emitted when a website is updated.
	OnWebsiteUpdatedEvent
	// OnWebsiteDeletedEvent is emitted when a website is deleted.
	OnWebsiteDeletedEvent
	// OnWebsiteImagesSavedEvent is emitted when new image paths are stored.
	OnWebsiteImagesSavedEvent
)

func (k EventKind) String() string {
	switch k {
	case OnWebsiteCreatedEvent:
		return "website_created"
	case OnWebsiteUpdatedEvent:
		return "website_updated"
	case OnWebsiteDeletedEvent:
		return "website_deleted"
	case OnWebsiteImagesSavedEvent:
		return "website_images_saved"
	default:
		return "unknown"
	}
}

type WebsiteCreatedEvent struct {
	Website Website
}

func (e WebsiteCreatedEvent) Kind() EventKind { return OnWebsiteCreatedEvent }

// WebsiteUpdatedEvent carries the website after the update. URLChanged is set
// when the update replaced the URL, which makes the stored images stale.
type WebsiteUpdatedEvent struct {
	Website    Website
	URLChanged bool
}

func (e WebsiteUpdatedEvent) Kind() EventKind { return OnWebsiteUpdatedEvent }

// WebsiteDeletedEvent carries the website as it was before deletion.
type WebsiteDeletedEvent struct {
	Website Website
}

func (e WebsiteDeletedEvent) Kind() EventKind { return OnWebsiteDeletedEvent }

// WebsiteImagesSavedEvent lists the paths that were written; empty means unchanged.
type WebsiteImagesSavedEvent struct {
	WebsiteID int64
	Favicon   string
	Thumbnail string
}

func (e WebsiteImagesSavedEvent) Kind() EventKind { return OnWebsiteImagesSavedEvent }

// EventListener is a callback that handles events of a specific kind.
type EventListener func(event Event) error

// RegisterEventListener adds a listener for a specific event kind.
// Listeners are called in registration order after the DB operation succeeds.
// Register listeners before the DB is shared between goroutines.
func (db *DB) RegisterEventListener(eventKind EventKind, listener EventListener) {
	if db.eventListeners == nil {
		db.eventListeners = make(map[EventKind][]EventListener)
	}
	db.eventListeners[eventKind] = append(db.eventListeners[eventKind], listener)
}

// emit dispatches an event to all registered listeners for that event kind.
func (db *DB) emit(event Event) {
	for _, listener := range db.eventListeners[event.Kind()] {
		if err := listener(event); err != nil {
			log.Error().Err(err).Str("event", event.Kind().String()).Msg("Event listener error")
		}
	}
}
