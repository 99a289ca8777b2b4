package dispatcher

import (
	"context"
	"errors"
	"sync"

	"agentic-edit/internal/events"
	"agentic-edit/internal/tools"
)

var (
	ErrNotStarted = errors.New("dispatcher is not serving the bus")
	ErrNoCall     = errors.New("dispatch request needs a call name and id")
)

// queued is a request published by Enqueue. It is already counted by Drain and Wait.
type queued struct {
	tools.DispatchRequest
}

// Dispatcher serves tools.DispatchRequest values, either published on the bus or
// handed to Submit, and publishes the resulting tools.ToolEvent values back onto it.
type Dispatcher struct {
	runtime *tools.Runtime
	session *tools.Session
	bus     *events.Bus
	sink    func(tools.ToolEvent)

	requests <-chan any
	loop     sync.WaitGroup
	calls    sync.WaitGroup

	laneMu   sync.Mutex
	lane     []func()
	laneBusy bool
}

func New(runtime *tools.Runtime, session *tools.Session, bus *events.Bus) *Dispatcher {
	return &Dispatcher{runtime: runtime, session: session, bus: bus}
}

// WithSink registers fn to receive every event synchronously, in addition to the bus.
// The bus drops events for slow subscribers; the sink never misses one.
func (d *Dispatcher) WithSink(fn func(tools.ToolEvent)) *Dispatcher {
	d.sink = fn
	return d
}

// Start serves the requests published on the bus until ctx is done or the bus closes.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.bus == nil || d.requests != nil {
		return
	}
	d.requests = d.bus.Subscribe()
	d.loop.Add(1)
	go func() {
		defer d.loop.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-d.requests:
				if !ok {
					return
				}
				switch v := evt.(type) {
				case queued:
					d.spawn(ctx, v.DispatchRequest)
				case tools.DispatchRequest:
					d.Submit(ctx, v)
				default:
					continue
				}
			}
		}
	}()
}

// Enqueue publishes req on the bus for the serving loop. The request never gets
// dropped; Enqueue waits for bus capacity instead.
func (d *Dispatcher) Enqueue(ctx context.Context, req tools.DispatchRequest) error {
	if req.Call.Name == "" || req.Call.ID == "" {
		return ErrNoCall
	}
	if d.requests == nil {
		return ErrNotStarted
	}
	d.calls.Add(1)
	if err := d.bus.PublishWait(ctx, queued{req}); err != nil {
		d.calls.Done()
		return err
	}
	return nil
}

// Submit runs req in its own goroutine. Requests without a name or id are ignored.
func (d *Dispatcher) Submit(ctx context.Context, req tools.DispatchRequest) bool {
	if req.Call.Name == "" || req.Call.ID == "" {
		return false
	}
	d.calls.Add(1)
	d.spawn(ctx, req)
	return true
}

// spawn runs a request already counted in d.calls.
func (d *Dispatcher) spawn(ctx context.Context, req tools.DispatchRequest) {
	go func() {
		defer d.calls.Done()
		d.Run(ctx, req)
	}()
}

// Run dispatches req on the calling goroutine.
func (d *Dispatcher) Run(ctx context.Context, req tools.DispatchRequest) tools.Result {
	callCtx := req.Ctx
	if callCtx == nil {
		callCtx = ctx
	}
	return d.runtime.Dispatch(callCtx, d.session, req.Call, d.emit)
}

// InOrder queues fn behind earlier InOrder work. Queued work runs one item at a time
// off the caller's goroutine, so a call waiting for approval never blocks the caller.
func (d *Dispatcher) InOrder(fn func()) {
	d.calls.Add(1)
	d.laneMu.Lock()
	d.lane = append(d.lane, fn)
	start := !d.laneBusy
	d.laneBusy = true
	d.laneMu.Unlock()
	if start {
		go d.runLane()
	}
}

func (d *Dispatcher) runLane() {
	for {
		d.laneMu.Lock()
		if len(d.lane) == 0 {
			d.laneBusy = false
			d.laneMu.Unlock()
			return
		}
		fn := d.lane[0]
		d.lane[0] = nil
		d.lane = d.lane[1:]
		d.laneMu.Unlock()

		fn()
		d.calls.Done()
	}
}

func (d *Dispatcher) emit(ev tools.ToolEvent) {
	if d.sink != nil {
		d.sink(ev)
	}
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}

// Drain blocks until every submitted, enqueued and ordered call has returned. The
// serving loop keeps running.
func (d *Dispatcher) Drain() {
	d.calls.Wait()
}

// Wait blocks until the serving loop has stopped and every call has returned. Requests
// still queued on the bus when the loop stopped are dispatched with their own context.
func (d *Dispatcher) Wait() {
	d.loop.Wait()
	if d.requests != nil {
	drain:
		for {
			select {
			case evt, ok := <-d.requests:
				if !ok {
					break drain
				}
				if v, isQueued := evt.(queued); isQueued {
					d.Run(context.Background(), v.DispatchRequest)
					d.calls.Done()
				}
			default:
				break drain
			}
		}
	}
	d.calls.Wait()
}
