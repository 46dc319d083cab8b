package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/config"
)

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
}

func (w *fakeWriter) lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, p := range w.points {
		out = append(out, write.PointToLineProtocol(p, time.Second))
	}
	return out
}

var fixedTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// newTestClient returns a connected client writing to a fake.
func newTestClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	return &Client{
		writeAPI:  w,
		now:       func() time.Time { return fixedTime },
		connected: true,
	}, w
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Bucket:  "runtime",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteRuntimeEvent(t *testing.T) {
	tests := []struct {
		name  string
		event string
		tags  map[string]string
		want  string
	}{
		{
			name:  "commit failure",
			event: EventCommitFailed,
			tags:  map[string]string{"place_id": "p1", "subsystem": "SERV:subalarm:p1"},
			want:  "subsystem_runtime,event=commit_failed,place_id=p1,subsystem=SERV:subalarm:p1 count=1i 1772355600\n",
		},
		{
			name:  "eviction without place",
			event: EventEviction,
			tags:  map[string]string{"reason": "expired"},
			want:  "subsystem_runtime,event=cache_eviction,reason=expired count=1i 1772355600\n",
		},
		{
			name:  "nil tags",
			event: EventLoadFailed,
			want:  "subsystem_runtime,event=cache_load_failed count=1i 1772355600\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestClient()
			c.WriteRuntimeEvent(tt.event, tt.tags)

			lines := w.lines()
			if len(lines) != 1 || lines[0] != tt.want {
				t.Errorf("written = %q, want %q", lines, tt.want)
			}
		})
	}
}

func TestWriteRuntimeEvent_DoesNotMutateTags(t *testing.T) {
	c, _ := newTestClient()
	tags := map[string]string{"place_id": "p1"}

	c.WriteRuntimeEvent(EventDropped, tags)

	if len(tags) != 1 {
		t.Errorf("caller tags modified: %v", tags)
	}
}

func TestWritePoint(t *testing.T) {
	c, w := newTestClient()

	c.WritePoint("subsystem_queue", map[string]string{"place_id": "p1"}, map[string]any{"depth": 3})

	want := "subsystem_queue,place_id=p1 depth=3i 1772355600\n"
	if lines := w.lines(); len(lines) != 1 || lines[0] != want {
		t.Errorf("written = %q, want %q", lines, want)
	}
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	c, w := newTestClient()
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.WriteRuntimeEvent(EventQueueRejected, map[string]string{"place_id": "p1"})
	c.WritePoint("x", nil, map[string]any{"v": 1})
	c.Flush()

	if len(w.lines()) != 0 || w.flushes != 0 {
		t.Errorf("disconnected client wrote %d points, flushed %d times", len(w.lines()), w.flushes)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestFlush(t *testing.T) {
	c, w := newTestClient()
	c.Flush()
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}
}

func TestWriteErrorsReachCallback(t *testing.T) {
	c, _ := newTestClient()
	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	errs <- errors.New("bucket not found")
	close(errs)
	c.handleWriteErrors(errs)

	select {
	case err := <-got:
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	default:
		t.Fatal("callback not invoked")
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}
