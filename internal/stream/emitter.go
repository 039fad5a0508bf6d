package stream

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/david/campsite-finder/internal/geo"
	"github.com/david/campsite-finder/internal/models"
	"github.com/david/campsite-finder/internal/search"
	"github.com/david/campsite-finder/internal/sources"
)

// Emitter multiplexes per-source searches into one ordered event stream
// that always ends with a single done event.
type Emitter struct {
	clients      map[models.Source]sources.Client
	orchestrator *search.Orchestrator
	lookahead    *search.Lookahead

	// Buffer is the capacity of the producer/consumer channel.
	Buffer int
}

func NewEmitter(clients map[models.Source]sources.Client, orch *search.Orchestrator, look *search.Lookahead) *Emitter {
	return &Emitter{clients: clients, orchestrator: orch, lookahead: look, Buffer: 16}
}

// RunSearch streams a range search around an already resolved center. req
// must be normalized.
func (e *Emitter) RunSearch(ctx context.Context, req search.Request, center search.Center, sink Sink) error {
	id := uuid.NewString()
	started := time.Now()
	log.Printf("[Search] %s range %q (%.4f,%.4f) r=%.0fmi %s..%s sources=%v",
		id, center.Location, center.Lat, center.Lon, req.RadiusMiles, req.StartDate, req.EndDate, req.Sources())

	err := e.run(ctx, sink, func(ctx context.Context, emit search.Emit) {
		emit(search.MetaEvent(center))
		params := req.Params(geo.Point{Latitude: center.Lat, Longitude: center.Lon})
		for _, src := range req.Sources() {
			if ctx.Err() != nil {
				return
			}
			client, ok := e.clients[src]
			if !ok {
				emit(search.ErrorEvent(fmt.Sprintf("%s is not configured.", src.Label())))
				continue
			}
			e.orchestrator.Search(ctx, client, params, emit)
		}
	})
	log.Printf("[Search] %s finished in %s (err=%v)", id, time.Since(started).Round(time.Millisecond), err)
	return err
}

// RunLookahead streams a next-available scan. req must be normalized.
func (e *Emitter) RunLookahead(ctx context.Context, req search.LookaheadRequest, sink Sink) error {
	id := uuid.NewString()
	log.Printf("[Search] %s lookahead %s/%s months=%d", id, req.Source, req.ParkID, req.LookaheadMonths)

	return e.run(ctx, sink, func(ctx context.Context, emit search.Emit) {
		client, ok := e.clients[req.Source]
		if !ok {
			emit(search.ErrorEvent(fmt.Sprintf("%s is not configured.", req.Source.Label())))
			return
		}
		e.lookahead.Run(ctx, client, req.Params(), emit)
	})
}

// run joins a producer and the sink through a channel. A failed Send
// cancels the producer; remaining events are drained and dropped.
func (e *Emitter) run(ctx context.Context, sink Sink, produce func(context.Context, search.Emit)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan search.Event, max(e.Buffer, 0))
	go func() {
		defer close(events)
		emit := func(ev search.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
		produce(ctx, emit)
		if ctx.Err() == nil {
			emit(search.DoneEvent())
		}
	}()

	var sendErr error
	for ev := range events {
		if sendErr != nil {
			continue
		}
		if err := sink.Send(ev); err != nil {
			sendErr = err
			cancel()
		}
	}
	return sendErr
}
