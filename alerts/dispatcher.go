package alerts

import (
	"context"
	"runtime"
	"sync"
	"time"

	"health-alert-inference/models"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "alerts")

const (
	DefaultQueueSize = 10000
	minWorkers       = 4
	maxWorkers       = 16
	publishTimeout   = 10 * time.Second
)

// Publisher delivers alert events to a downstream system.
type Publisher interface {
	Publish(ctx context.Context, event models.AlertEvent) error
	Close() error
}

// Dispatcher publishes alert events from a bounded queue on a pool of workers.
type Dispatcher struct {
	publisher Publisher
	events    chan models.AlertEvent
	wg        sync.WaitGroup
	closeOnce sync.Once
	onError   func()
}

// NewDispatcher starts the workers. workers <= 0 picks NumCPU*2, clamped to
// [4, 16].
func NewDispatcher(publisher Publisher, workers, queueSize int, onError func()) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
		if workers < minWorkers {
			workers = minWorkers
		}
		if workers > maxWorkers {
			workers = maxWorkers
		}
	}

	d := &Dispatcher{
		publisher: publisher,
		events:    make(chan models.AlertEvent, queueSize),
		onError:   onError,
	}

	log.Infof("Starting %d alert workers", workers)
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.run()
	}
	return d
}

// Submit enqueues an event, dropping it when the queue is full.
func (d *Dispatcher) Submit(event models.AlertEvent) bool {
	select {
	case d.events <- event:
		return true
	default:
		log.Warnf("alert queue is full, dropping alert for patient %s", event.PatientID)
		if d.onError != nil {
			d.onError()
		}
		return false
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.publisher.Publish(ctx, event); err != nil {
			log.WithError(err).Errorf("failed to publish alert for patient %s", event.PatientID)
			if d.onError != nil {
				d.onError()
			}
		}
		cancel()
	}
}

// Close stops accepting events, drains the queue and closes the publisher.
// Submit must not be called after Close.
func (d *Dispatcher) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.events)
		d.wg.Wait()
		err = d.publisher.Close()
	})
	return err
}
