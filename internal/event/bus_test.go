package event

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type sampleEvent struct {
	kind string
	at   time.Time
}

func (e sampleEvent) Type() string         { return e.kind }
func (e sampleEvent) Timestamp() time.Time { return e.at }

func newSample(kind string) sampleEvent {
	return sampleEvent{kind: kind, at: time.Now().UTC()}
}

func readEvent[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before event")
		}
		return value
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus[sampleEvent](context.Background(), BusOptions{Name: "fanout", Metrics: metrics.NewRegistry()})
	defer bus.Close()

	first, cancelFirst := bus.Subscribe()
	defer cancelFirst()
	second, cancelSecond := bus.Subscribe()
	defer cancelSecond()

	bus.Publish(newSample("dir-add"))

	if got := readEvent(t, first).Type(); got != "dir-add" {
		t.Fatalf("first subscriber got %q", got)
	}
	if got := readEvent(t, second).Type(); got != "dir-add" {
		t.Fatalf("second subscriber got %q", got)
	}
}

func TestBusPreservesPublishOrder(t *testing.T) {
	bus := NewBus[sampleEvent](context.Background(), BusOptions{Name: "order", Metrics: metrics.NewRegistry()})
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	kinds := []string{"file-add", "dir-add", "file-unlink", "dir-unlink"}
	for _, kind := range kinds {
		bus.Publish(newSample(kind))
	}
	for _, kind := range kinds {
		if got := readEvent(t, ch).Type(); got != kind {
			t.Fatalf("expected %q, got %q", kind, got)
		}
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	registry := metrics.NewRegistry()
	bus := NewBus[sampleEvent](context.Background(), BusOptions{
		Name:                 "drop",
		SubscriberBufferSize: 1,
		Metrics:              registry,
	})
	defer bus.Close()

	slow, cancelSlow := bus.Subscribe()
	defer cancelSlow()
	fast, cancelFast := bus.SubscribeFiltered(func(sampleEvent) bool { return true })
	defer cancelFast()

	bus.Publish(newSample("file-add"))
	readEvent(t, fast)
	bus.Publish(newSample("file-add"))
	readEvent(t, fast)

	if got := readEvent(t, slow).Type(); got != "file-add" {
		t.Fatalf("unexpected event %q", got)
	}
	select {
	case <-slow:
		t.Fatal("expected second event to be dropped for slow subscriber")
	default:
	}

	published, dropped := bus.Stats()
	if published != 2 || dropped != 1 {
		t.Fatalf("expected 2 published and 1 dropped, got %d and %d", published, dropped)
	}

	expected := `
# HELP dirwatch_bus_events_dropped_total Events dropped for slow or closed subscribers
# TYPE dirwatch_bus_events_dropped_total counter
dirwatch_bus_events_dropped_total{bus="drop",type="file-add"} 1
`
	if err := testutil.GatherAndCompare(registry.Gatherer(), strings.NewReader(expected), "dirwatch_bus_events_dropped_total"); err != nil {
		t.Fatal(err)
	}
}

func TestBusDropRateWarningIsLogged(t *testing.T) {
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(10), logging.LevelWarning, nil)
	bus := NewBus[sampleEvent](context.Background(), BusOptions{
		Name:                 "warn",
		SubscriberBufferSize: 1,
		Metrics:              metrics.NewRegistry(),
		Logger:               logger,
	})
	defer bus.Close()

	_, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(newSample("file-add"))
	bus.Publish(newSample("file-add"))

	entries := logger.Buffer().List()
	if len(entries) != 1 {
		t.Fatalf("expected one warning, got %d", len(entries))
	}
	if entries[0].Message != "event drop rate high" {
		t.Fatalf("unexpected warning %q", entries[0].Message)
	}
	if entries[0].Context["bus"] != "warn" {
		t.Fatalf("expected bus field, got %v", entries[0].Context)
	}
}

func TestBusBlockOnFullEvictsAfterTimeout(t *testing.T) {
	bus := NewBus[sampleEvent](context.Background(), BusOptions{
		Name:                 "evict",
		SubscriberBufferSize: 1,
		BlockOnFull:          true,
		WriteTimeout:         10 * time.Millisecond,
		Metrics:              metrics.NewRegistry(),
	})
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(newSample("dir-add"))
	bus.Publish(newSample("dir-add"))

	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected subscriber to be evicted, got %d", bus.SubscriberCount())
	}
	readEvent(t, ch)
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after eviction")
	}
}

func TestBusSubscribeTypesFilters(t *testing.T) {
	bus := NewBus[sampleEvent](context.Background(), BusOptions{Name: "typed", Metrics: metrics.NewRegistry()})
	defer bus.Close()

	ch, cancel := bus.SubscribeTypes("dir-add", "dir-unlink")
	defer cancel()

	bus.Publish(newSample("file-add"))
	bus.Publish(newSample("dir-unlink"))

	if got := readEvent(t, ch).Type(); got != "dir-unlink" {
		t.Fatalf("expected dir-unlink, got %q", got)
	}
	select {
	case event := <-ch:
		t.Fatalf("unexpected event %q", event.Type())
	default:
	}
}

func TestBusSubscribeTypesWithoutTypesIsClosed(t *testing.T) {
	bus := NewBus[sampleEvent](context.Background(), BusOptions{Metrics: metrics.NewRegistry()})
	defer bus.Close()

	ch, cancel := bus.SubscribeTypes("", "")
	defer cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected no subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusPanickingFilterIsIsolated(t *testing.T) {
	bus := NewBus[sampleEvent](context.Background(), BusOptions{Name: "panic", Metrics: metrics.NewRegistry()})
	defer bus.Close()

	bad, cancelBad := bus.SubscribeFiltered(func(sampleEvent) bool { panic("boom") })
	defer cancelBad()
	good, cancelGood := bus.Subscribe()
	defer cancelGood()

	bus.Publish(newSample("file-unlink"))

	if got := readEvent(t, good).Type(); got != "file-unlink" {
		t.Fatalf("unexpected event %q", got)
	}
	if _, ok := <-bad; ok {
		t.Fatal("expected panicking subscriber to be removed")
	}
}

func TestBusMaxSubscribers(t *testing.T) {
	bus := NewBus[sampleEvent](context.Background(), BusOptions{MaxSubscribers: 1, Metrics: metrics.NewRegistry()})
	defer bus.Close()

	_, cancel := bus.Subscribe()
	defer cancel()
	ch, cancelExtra := bus.Subscribe()
	defer cancelExtra()

	if _, ok := <-ch; ok {
		t.Fatal("expected subscription over the limit to be closed")
	}
	if bus.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}
}

func TestBusSubscriberGauge(t *testing.T) {
	registry := metrics.NewRegistry()
	bus := NewBus[sampleEvent](context.Background(), BusOptions{Name: "gauge", Metrics: registry})
	defer bus.Close()

	_, cancelPlain := bus.Subscribe()
	_, cancelFiltered := bus.SubscribeTypes("dir-add")
	defer cancelFiltered()

	expected := `
# HELP dirwatch_bus_subscribers Current event bus subscribers
# TYPE dirwatch_bus_subscribers gauge
dirwatch_bus_subscribers{bus="gauge",filtered="false"} 1
dirwatch_bus_subscribers{bus="gauge",filtered="true"} 1
`
	if err := testutil.GatherAndCompare(registry.Gatherer(), strings.NewReader(expected), "dirwatch_bus_subscribers"); err != nil {
		t.Fatal(err)
	}

	cancelPlain()
	expected = `
# HELP dirwatch_bus_subscribers Current event bus subscribers
# TYPE dirwatch_bus_subscribers gauge
dirwatch_bus_subscribers{bus="gauge",filtered="false"} 0
dirwatch_bus_subscribers{bus="gauge",filtered="true"} 1
`
	if err := testutil.GatherAndCompare(registry.Gatherer(), strings.NewReader(expected), "dirwatch_bus_subscribers"); err != nil {
		t.Fatal(err)
	}
}

func TestBusClosesOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus[sampleEvent](ctx, BusOptions{Metrics: metrics.NewRegistry()})

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("bus did not close after context cancel")
	}

	bus.Publish(newSample("dir-add"))
	late, cancelLate := bus.Subscribe()
	defer cancelLate()
	if _, ok := <-late; ok {
		t.Fatal("expected subscription after close to be closed")
	}
}

func TestBusIgnoresNilEvents(t *testing.T) {
	bus := NewBus[Event](context.Background(), BusOptions{Metrics: metrics.NewRegistry()})
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(nil)
	select {
	case <-ch:
		t.Fatal("nil event should not be delivered")
	default:
	}
	if published, _ := bus.Stats(); published != 0 {
		t.Fatalf("expected no published events, got %d", published)
	}
}

func TestBusConcurrentSubscribeAndPublish(t *testing.T) {
	bus := NewBus[sampleEvent](context.Background(), BusOptions{Metrics: metrics.NewRegistry()})
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, cancel := bus.Subscribe()
				cancel()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(newSample("file-add"))
			}
		}()
	}
	wg.Wait()

	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected all subscribers removed, got %d", bus.SubscriberCount())
	}
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *Bus[sampleEvent]
	bus.Publish(newSample("dir-add"))
	bus.Close()
	ch, cancel := bus.Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel from nil bus")
	}
	if bus.SubscriberCount() != 0 {
		t.Fatal("expected zero subscribers")
	}
}
