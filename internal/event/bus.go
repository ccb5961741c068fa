// Package event fans published values out to subscriber channels. The
// directory watcher publishes normalized events on a Bus and every stream
// listener reads them from its own subscription.
package event

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"dirwatch/internal/logging"
)

const (
	defaultBufferSize       = 128
	defaultBlockingWait     = time.Second
	defaultDropWarnRatio    = 0.01
	defaultDropWarnInterval = 30 * time.Second
	defaultBusName          = "event_bus"
	unknownEventType        = "unknown"
)

// Recorder receives bus counters. *metrics.Registry satisfies it.
type Recorder interface {
	IncEventPublished(bus, eventType string)
	IncEventDropped(bus, eventType string)
	SetEventSubscriberCounts(bus string, filtered, unfiltered int)
}

type BusOptions struct {
	Name                 string
	SubscriberBufferSize int
	// BlockOnFull makes Publish wait up to WriteTimeout for room in a full
	// subscriber channel. A subscriber still full after that is evicted.
	BlockOnFull             bool
	WriteTimeout            time.Duration
	MaxSubscribers          int
	SlowSubscriberThreshold time.Duration
	DropWarningThreshold    float64
	DropWarningInterval     time.Duration
	Metrics                 Recorder
	Logger                  *logging.Logger
}

// Bus delivers every published value to each subscriber's buffered channel.
// A full subscriber loses the value without delaying the others. Nothing is
// retained: a subscriber only sees values published after it subscribed.
type Bus[T any] struct {
	name    string
	options BusOptions
	metrics Recorder
	logger  *logging.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscriber[T]
	nextID uint64
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
	lastWarn  atomic.Int64
}

// NewBus returns a bus that closes itself, and every subscription, once ctx
// is done.
func NewBus[T any](ctx context.Context, opts BusOptions) *Bus[T] {
	if opts.SubscriberBufferSize <= 0 {
		opts.SubscriberBufferSize = defaultBufferSize
	}
	if opts.BlockOnFull && opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultBlockingWait
	}
	if opts.DropWarningThreshold <= 0 {
		opts.DropWarningThreshold = defaultDropWarnRatio
	}
	if opts.DropWarningInterval <= 0 {
		opts.DropWarningInterval = defaultDropWarnInterval
	}
	name := opts.Name
	if name == "" {
		name = defaultBusName
	}
	recorder := opts.Metrics
	if recorder == nil {
		recorder = discardRecorder{}
	}
	bus := &Bus[T]{
		name:    name,
		options: opts,
		metrics: recorder,
		logger:  opts.Logger,
		subs:    make(map[uint64]*subscriber[T]),
	}
	if ctx != nil {
		context.AfterFunc(ctx, bus.Close)
	}
	return bus
}

func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.subscribe(nil)
}

// SubscribeFiltered only delivers values for which filter returns true. A
// filter that panics loses its subscription.
func (b *Bus[T]) SubscribeFiltered(filter func(T) bool) (<-chan T, func()) {
	return b.subscribe(filter)
}

// SubscribeTypes delivers values whose Type() is one of eventTypes. With no
// usable type the returned channel is already closed.
func (b *Bus[T]) SubscribeTypes(eventTypes ...string) (<-chan T, func()) {
	wanted := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		if eventType != "" {
			wanted[eventType] = true
		}
	}
	if len(wanted) == 0 {
		return closedChannel[T](), func() {}
	}
	return b.subscribe(func(value T) bool {
		typed, ok := any(value).(Typed)
		return ok && wanted[typed.Type()]
	})
}

func (b *Bus[T]) subscribe(filter func(T) bool) (<-chan T, func()) {
	if b == nil {
		return closedChannel[T](), func() {}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return closedChannel[T](), func() {}
	}
	if limit := b.options.MaxSubscribers; limit > 0 && len(b.subs) >= limit {
		b.mu.Unlock()
		b.warn("subscriber limit reached", map[string]string{
			"max_subscribers": strconv.Itoa(limit),
		})
		return closedChannel[T](), func() {}
	}
	b.nextID++
	sub := &subscriber[T]{
		id:     b.nextID,
		filter: filter,
		ch:     make(chan T, b.options.SubscriberBufferSize),
	}
	b.subs[sub.id] = sub
	filtered, plain := b.countLocked()
	b.mu.Unlock()

	b.metrics.SetEventSubscriberCounts(b.name, filtered, plain)
	return sub.ch, func() { b.remove(sub) }
}

// Publish hands value to every matching subscriber. Nil values and values
// published after Close are ignored.
func (b *Bus[T]) Publish(value T) {
	if b == nil || isNil(value) {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	targets := make([]*subscriber[T], 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	eventType := typeOf(value)
	b.published.Add(1)
	b.metrics.IncEventPublished(b.name, eventType)
	if b.logger.Enabled(logging.LevelDebug) {
		b.debug("event published", map[string]string{
			"type":        eventType,
			"subscribers": strconv.Itoa(len(targets)),
		})
	}

	for _, sub := range targets {
		if b.accepts(sub, value) {
			b.deliver(sub, value, eventType)
		}
	}
}

// Close closes every subscription. Later subscriptions start closed.
func (b *Bus[T]) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[uint64]*subscriber[T])
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	b.metrics.SetEventSubscriberCounts(b.name, 0, 0)
}

func (b *Bus[T]) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Stats reports lifetime published and dropped counts.
func (b *Bus[T]) Stats() (published, dropped int64) {
	if b == nil {
		return 0, 0
	}
	return b.published.Load(), b.dropped.Load()
}

func (b *Bus[T]) deliver(sub *subscriber[T], value T, eventType string) {
	var wait time.Duration
	if b.options.BlockOnFull {
		wait = b.options.WriteTimeout
	}
	start := time.Now()
	sent, gone := sub.send(value, wait)
	if gone {
		return
	}
	blocked := time.Since(start)
	if sent {
		if threshold := b.options.SlowSubscriberThreshold; wait > 0 && threshold > 0 && blocked >= threshold {
			b.warn("slow subscriber", map[string]string{"blocked": blocked.String()})
		}
		return
	}

	b.recordDrop(eventType)
	if b.options.BlockOnFull {
		b.remove(sub)
		b.warn("subscriber evicted after write timeout", map[string]string{
			"blocked": blocked.String(),
		})
	}
}

func (b *Bus[T]) accepts(sub *subscriber[T], value T) (ok bool) {
	if sub.filter == nil {
		return true
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			b.warn("subscriber filter panicked", map[string]string{
				"panic": fmt.Sprint(recovered),
			})
			b.remove(sub)
			ok = false
		}
	}()
	return sub.filter(value)
}

func (b *Bus[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	current, found := b.subs[sub.id]
	found = found && current == sub
	var filtered, plain int
	if found {
		delete(b.subs, sub.id)
		filtered, plain = b.countLocked()
	}
	b.mu.Unlock()

	sub.close()
	if found {
		b.metrics.SetEventSubscriberCounts(b.name, filtered, plain)
	}
}

func (b *Bus[T]) countLocked() (filtered, plain int) {
	for _, sub := range b.subs {
		if sub.filter == nil {
			plain++
		} else {
			filtered++
		}
	}
	return filtered, plain
}

// recordDrop counts a lost value and warns, at most once per interval, while
// the drop ratio stays above the threshold.
func (b *Bus[T]) recordDrop(eventType string) {
	dropped := b.dropped.Add(1)
	b.metrics.IncEventDropped(b.name, eventType)

	published := b.published.Load()
	if published == 0 {
		return
	}
	ratio := float64(dropped) / float64(published)
	if ratio < b.options.DropWarningThreshold {
		return
	}
	now := time.Now().UnixNano()
	last := b.lastWarn.Load()
	if last != 0 && time.Duration(now-last) < b.options.DropWarningInterval {
		return
	}
	if !b.lastWarn.CompareAndSwap(last, now) {
		return
	}
	b.warn("event drop rate high", map[string]string{
		"drop_rate": fmt.Sprintf("%.2f%%", ratio*100),
		"dropped":   strconv.FormatInt(dropped, 10),
		"published": strconv.FormatInt(published, 10),
	})
}

func (b *Bus[T]) warn(message string, fields map[string]string) {
	b.logger.Warn(message, b.fields(fields))
}

func (b *Bus[T]) debug(message string, fields map[string]string) {
	b.logger.Debug(message, b.fields(fields))
}

func (b *Bus[T]) fields(fields map[string]string) map[string]string {
	merged := logging.Fields("event", fields)
	merged["bus"] = b.name
	return merged
}

// subscriber serializes sends with close so a cancelled subscription is
// never written to.
type subscriber[T any] struct {
	id     uint64
	filter func(T) bool

	mu     sync.Mutex
	ch     chan T
	closed bool
}

// send queues value, waiting up to wait when the channel is full. gone is
// true when the subscription was already closed.
func (sub *subscriber[T]) send(value T, wait time.Duration) (sent, gone bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return false, true
	}
	if wait <= 0 {
		select {
		case sub.ch <- value:
			return true, false
		default:
			return false, false
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case sub.ch <- value:
		return true, false
	case <-timer.C:
		return false, false
	}
}

func (sub *subscriber[T]) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

type discardRecorder struct{}

func (discardRecorder) IncEventPublished(string, string)          {}
func (discardRecorder) IncEventDropped(string, string)            {}
func (discardRecorder) SetEventSubscriberCounts(string, int, int) {}

func closedChannel[T any]() <-chan T {
	ch := make(chan T)
	close(ch)
	return ch
}

func typeOf(value any) string {
	typed, ok := value.(Typed)
	if !ok || typed.Type() == "" {
		return unknownEventType
	}
	return typed.Type()
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
