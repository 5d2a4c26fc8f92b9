// Package galleryevent implements the event half of C8: the typed
// engine-to-GUI event surface (spec §6) and the fan-out bus that delivers
// it. Design Notes calls for "a broadcast channel with bounded buffer;
// drop-oldest for speed events, block briefly for task lifecycle events" —
// that asymmetry is implemented directly below rather than through a
// generic pub-sub library, since none of the pack's messaging dependencies
// (none were retrieved for this spec) fit a single-process fan-out this
// small.
package galleryevent

import (
	"time"

	"github.com/sirzenith/galleryvault/gallery"
)

// EventKind distinguishes Create from Update for task lifecycle events and
// Start/End/Error for export events.
type EventKind string

const (
	KindCreate EventKind = "create"
	KindUpdate EventKind = "update"
	KindStart  EventKind = "start"
	KindEnd    EventKind = "end"
	KindError  EventKind = "error"
)

// TaskState mirrors download.State without importing the download package,
// so galleryevent has no dependency on the orchestrator.
type TaskState string

// ProgressSnapshot is the downloadTaskEvent payload (spec §3, §6).
type ProgressSnapshot struct {
	Event              EventKind
	ComicID            int
	State              TaskState
	Comic              gallery.Comic
	DownloadedImgCount int
	TotalImgCount      int
}

// SpeedEvent is the downloadSpeedEvent payload.
type SpeedEvent struct {
	BytesPerSec float64
	Formatted   string
}

// ExportEvent is the exportPdfEvent/exportCbzEvent payload.
type ExportEvent struct {
	Kind  EventKind
	UUID  string
	Title string
	Err   string
}

// LogEvent is the logEvent payload (spec §6), forwarded from the
// charmbracelet/log sink.
type LogEvent struct {
	Timestamp time.Time
	Level     string
	Target    string
	Filename  string
	Line      int
	Fields    map[string]any
}

// ConfigChangedEvent carries no payload beyond the fact that it fired; the
// GUI is expected to call getConfig() again.
type ConfigChangedEvent struct{}

// Event is the tagged union delivered on the Bus.
type Event struct {
	Progress *ProgressSnapshot
	Speed    *SpeedEvent
	Export   *ExportEvent
	Log      *LogEvent
	Config   *ConfigChangedEvent
}

const (
	lifecycleBuffer = 64
	speedBuffer     = 4
)

// Bus fans engine events out to every subscribed GUI pane. Lifecycle
// events (progress, export, log, config) block for up to 200ms on a full
// subscriber channel and are dropped for that subscriber if it is still
// full; speed events drop the oldest buffered value instead, since only the
// latest throughput reading is ever useful.
type Bus struct {
	subs []chan Event
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a new channel that receives every event published
// after this call.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, lifecycleBuffer)
	b.subs = append(b.subs, ch)
	return ch
}

// PublishProgress, PublishSpeed, PublishExport, PublishLog and
// PublishConfigChanged wrap Publish for each event kind.
func (b *Bus) PublishProgress(p ProgressSnapshot) { b.publish(Event{Progress: &p}, false) }
func (b *Bus) PublishSpeed(s SpeedEvent)           { b.publish(Event{Speed: &s}, true) }
func (b *Bus) PublishExport(e ExportEvent)         { b.publish(Event{Export: &e}, false) }
func (b *Bus) PublishLog(l LogEvent)               { b.publish(Event{Log: &l}, false) }
func (b *Bus) PublishConfigChanged()               { b.publish(Event{Config: &ConfigChangedEvent{}}, false) }

func (b *Bus) publish(evt Event, dropOldest bool) {
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			if dropOldest {
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- evt:
				default:
				}
			} else {
				// lifecycle events block briefly rather than being dropped
				select {
				case ch <- evt:
				case <-time.After(200 * time.Millisecond):
				}
			}
		}
	}
}
