// Package hooks provides the sink's lifecycle event bus. The coordinator
// fires events around table commits and compaction passes; embedders (and
// the auto-compaction trigger itself) subscribe through a HookManager.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/INLOpen/lakesink/core"
)

// EventType defines the type of a hook event.
type EventType string

const (
	// EventPreCommit fires before the coordinator attempts a table commit.
	// A listener error cancels the commit and fails the job.
	EventPreCommit EventType = "PreCommit"
	// EventPostCommit fires after a checkpoint was successfully committed.
	EventPostCommit EventType = "PostCommit"
	// EventPostCompaction fires after a compaction pass finished, whether it
	// succeeded or not.
	EventPostCompaction EventType = "PostCompaction"
)

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event in priority
	// order. Pre-events run synchronously and may cancel the operation;
	// Post-events run sync or async per listener preference.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete.
	Stop()
}

// HookEvent is the interface all event objects implement.
type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// HookListener is implemented by components that want to observe events.
type HookListener interface {
	// OnEvent is called when a registered event is triggered. Returning an
	// error from a Pre event cancels the operation; errors from Post events
	// are logged without affecting the main operation.
	OnEvent(ctx context.Context, event HookEvent) error
	// Priority orders listeners; lower numbers are executed first.
	Priority() int
	// IsAsync indicates if the listener runs asynchronously for Post events.
	IsAsync() bool
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// PreCommitPayload carries the data of an imminent table commit.
type PreCommitPayload struct {
	CheckpointID int64
	AddedFiles   []core.DataFile
}

// NewPreCommitEvent creates an event for before a checkpoint commit.
func NewPreCommitEvent(payload PreCommitPayload) HookEvent {
	return &BaseEvent{eventType: EventPreCommit, payload: payload}
}

// PostCommitPayload carries the result of a successful checkpoint commit.
type PostCommitPayload struct {
	CheckpointID int64
	Snapshot     core.Snapshot
	AddedFiles   []core.DataFile
}

// NewPostCommitEvent creates an event for after a checkpoint commit.
func NewPostCommitEvent(payload PostCommitPayload) HookEvent {
	return &BaseEvent{eventType: EventPostCommit, payload: payload}
}

// PostCompactionPayload carries the outcome of one compaction pass.
type PostCompactionPayload struct {
	Partition core.PartitionKey
	Replaced  []core.DataFile
	Produced  []core.DataFile
	Error     error
}

// NewPostCompactionEvent creates an event for after a compaction pass.
func NewPostCompactionEvent(payload PostCompactionPayload) HookEvent {
	return &BaseEvent{eventType: EventPostCompaction, payload: payload}
}

type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is the concrete HookManager.
type DefaultHookManager struct {
	// listeners are kept sorted by priority per event type.
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger,
	}
}

// Register adds a listener for an event type, maintaining priority order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{listener: listener, priority: listener.Priority()}
	l := m.listeners[eventType]
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority >= item.priority
	})
	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item
	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners := m.listeners[event.Type()]
	m.mu.RUnlock()

	if len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		// Pre-hooks must be synchronous to allow for cancellation.
		if isPreHook || !item.listener.IsAsync() {
			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				m.logger.Error("Error from synchronous post-hook listener",
					"event", event.Type(), "priority", item.priority, "error", err)
			}
		} else {
			m.wg.Add(1)
			go func(currentItem *listenerWithPriority) {
				defer m.wg.Done()
				if err := currentItem.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("Error from asynchronous post-hook listener",
						"event", event.Type(), "priority", currentItem.priority, "error", err)
				}
			}(item)
		}
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}

// FuncListener adapts a plain function into a synchronous HookListener.
type FuncListener struct {
	Fn       func(ctx context.Context, event HookEvent) error
	Prio     int
	RunAsync bool
}

func (f *FuncListener) OnEvent(ctx context.Context, event HookEvent) error {
	return f.Fn(ctx, event)
}

func (f *FuncListener) Priority() int { return f.Prio }
func (f *FuncListener) IsAsync() bool { return f.RunAsync }
