package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/david/campsite-finder/internal/availability"
	"github.com/david/campsite-finder/internal/geo"
	"github.com/david/campsite-finder/internal/models"
	"github.com/david/campsite-finder/internal/search"
	"github.com/david/campsite-finder/internal/sources"
)

type stubClient struct {
	src     models.Source
	limited bool
	calls   atomic.Int32
}

func (c *stubClient) Source() models.Source { return c.src }

func (c *stubClient) Check(_ context.Context, cand models.Candidate, months []models.Date, _ sources.CheckOptions) []sources.Fetch {
	c.calls.Add(1)
	if c.limited {
		return []sources.Fetch{{Label: cand.Park.ID, Err: fmt.Errorf("check: %w", sources.ErrRateLimited)}}
	}
	return []sources.Fetch{{Entries: []availability.Entry{{
		SiteName: "Site " + cand.Park.ID, Category: models.CategoryTent, Date: "2024-06-02", Available: true,
	}}}}
}

func (c *stubClient) Children(context.Context, string) (models.ParkChildren, error) {
	return models.ParkChildren{}, nil
}

func (c *stubClient) ParkURL(id string) string { return id }

type stubCatalog struct{ n int }

func (s stubCatalog) Near(_ context.Context, src models.Source, _ geo.Point, _ float64) ([]models.Candidate, error) {
	out := make([]models.Candidate, s.n)
	for i := range out {
		out[i] = models.Candidate{Park: models.CatalogPark{ID: fmt.Sprintf("%s-%d", src, i), Source: src}}
	}
	return out, nil
}

func (s stubCatalog) Park(context.Context, models.Source, string) (models.CatalogPark, error) {
	return models.CatalogPark{ID: "1"}, nil
}

type memSink struct {
	events []search.Event
	failAt int
}

func (m *memSink) Send(e search.Event) error {
	if m.failAt > 0 && len(m.events) >= m.failAt {
		return errors.New("client went away")
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) count(t search.EventType) int {
	n := 0
	for _, e := range m.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newEmitter(recgov, rca *stubClient, n int) *Emitter {
	cat := stubCatalog{n: n}
	orch := search.NewOrchestrator(cat, nil, 0)
	look := search.NewLookahead(cat, nil)
	return NewEmitter(map[models.Source]sources.Client{
		models.SourceRecreationGov:     recgov,
		models.SourceReserveCalifornia: rca,
	}, orch, look)
}

func bothSources() search.Request {
	on := true
	return search.Request{
		Location:                "Big Sur",
		RadiusMiles:             50,
		StartDate:               models.NewDate(2024, 6, 1),
		EndDate:                 models.NewDate(2024, 6, 5),
		NumPeople:               1,
		SearchRecreationGov:     &on,
		SearchReserveCalifornia: true,
	}
}

func TestRunSearch_MetaSourcesInOrderThenDone(t *testing.T) {
	recgov := &stubClient{src: models.SourceRecreationGov}
	rca := &stubClient{src: models.SourceReserveCalifornia}
	sink := &memSink{}

	err := newEmitter(recgov, rca, 3).RunSearch(context.Background(), bothSources(), search.Center{Lat: 36.27, Lon: -121.8, Location: "Big Sur"}, sink)
	if err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	if sink.events[0].Type != search.EventMeta || sink.count(search.EventMeta) != 1 {
		t.Fatalf("expected a single leading meta event, got %+v", sink.events[0])
	}
	if sink.events[len(sink.events)-1].Type != search.EventDone || sink.count(search.EventDone) != 1 {
		t.Fatal("expected exactly one trailing done event")
	}

	var order []models.Source
	for _, e := range sink.events {
		if e.Type == search.EventResult {
			order = append(order, e.Data.(models.Campsite).Source)
		}
	}
	if len(order) != 6 || order[0] != models.SourceRecreationGov || order[5] != models.SourceReserveCalifornia {
		t.Fatalf("unexpected result order %v", order)
	}
	for i := 1; i < len(order); i++ {
		if order[i] == models.SourceRecreationGov && order[i-1] == models.SourceReserveCalifornia {
			t.Fatal("sources must not interleave")
		}
	}
}

func TestRunSearch_RateLimitedSourceLetsOtherFinish(t *testing.T) {
	recgov := &stubClient{src: models.SourceRecreationGov, limited: true}
	rca := &stubClient{src: models.SourceReserveCalifornia}
	sink := &memSink{}

	if err := newEmitter(recgov, rca, 12).RunSearch(context.Background(), bothSources(), search.Center{}, sink); err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	if sink.count(search.EventError) != 1 {
		t.Fatalf("expected one error event, got %d", sink.count(search.EventError))
	}
	if recgov.calls.Load() != 5 {
		t.Fatalf("expected the limited source to stop after one batch, got %d checks", recgov.calls.Load())
	}
	if sink.count(search.EventResult) != 12 {
		t.Fatalf("expected every ReserveCalifornia result, got %d", sink.count(search.EventResult))
	}
	if sink.events[len(sink.events)-1].Type != search.EventDone {
		t.Fatal("done must still terminate the stream")
	}
}

func TestRunSearch_ConsumerGoneCancelsProducer(t *testing.T) {
	recgov := &stubClient{src: models.SourceRecreationGov}
	rca := &stubClient{src: models.SourceReserveCalifornia}
	sink := &memSink{failAt: 2}

	err := newEmitter(recgov, rca, 30).RunSearch(context.Background(), bothSources(), search.Center{}, sink)
	if err == nil {
		t.Fatal("expected the sink error to be returned")
	}
	if recgov.calls.Load() == 30 {
		t.Fatal("producer kept checking after the consumer left")
	}
	if rca.calls.Load() != 0 {
		t.Fatalf("second source must not start, got %d checks", rca.calls.Load())
	}
}

func TestRunLookahead_EndsWithDone(t *testing.T) {
	rca := &stubClient{src: models.SourceReserveCalifornia}
	sink := &memSink{}
	req := search.LookaheadRequest{ParkID: "1", Source: models.SourceReserveCalifornia, LookaheadMonths: 2}

	if err := newEmitter(&stubClient{src: models.SourceRecreationGov}, rca, 0).RunLookahead(context.Background(), req, sink); err != nil {
		t.Fatalf("RunLookahead: %v", err)
	}
	last := sink.events[len(sink.events)-1]
	if last.Type != search.EventDone || sink.count(search.EventDone) != 1 {
		t.Fatalf("expected a single trailing done, got %+v", sink.events)
	}
}

func TestSSEWriter_Frames(t *testing.T) {
	rec := httptest.NewRecorder()
	PrepareSSE(rec.Header())
	w := NewSSEWriter(rec)

	if err := w.Send(search.ProgressEvent(search.Progress{Checked: 5, Total: 12, Found: 2})); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := w.Send(search.DoneEvent()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := "event: progress\ndata: {\"checked\":5,\"total\":12,\"found\":2}\n\n" +
		"event: done\ndata: {}\n\n"
	if rec.Body.String() != want {
		t.Fatalf("unexpected body:\n%q\nwant\n%q", rec.Body.String(), want)
	}
	if rec.Header().Get("Content-Type") != "text/event-stream" || !rec.Flushed {
		t.Fatal("expected streaming headers and a flush")
	}
}

func TestWSWriter_JSONFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		ws := NewWSWriter(conn)
		_ = ws.Send(search.StatusEvent("Searching Recreation.gov campgrounds..."))
		_ = ws.Send(search.DoneEvent())
		_ = ws.Close()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var first struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if first.Event != "status" || first.Data["message"] != "Searching Recreation.gov campgrounds..." {
		t.Fatalf("unexpected frame %+v", first)
	}
	var done struct {
		Event string `json:"event"`
	}
	if err := conn.ReadJSON(&done); err != nil || done.Event != "done" {
		t.Fatalf("expected done frame, got %+v %v", done, err)
	}
}
