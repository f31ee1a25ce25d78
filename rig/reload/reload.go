// Package reload tells browsers to reload a page when a rig observes a change.
//
// Pages opt in by loading the client script, which subscribes to a stream of server sent "reload" events.  The script
// tag is meant for development only; production HTML has it stripped.
package reload

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/themerig/rig"
	"github.com/swdunlop/themerig/rig/api"
	"github.com/swdunlop/themerig/rig/hook"
	sse "github.com/tmaxmax/go-sse"
)

// EventType is the type of event published for every reload.
const EventType = `reload`

// New returns a broker for theme pages that load the dev client from origin; its clients subscribe at
// origin+eventsPath until the rig reports where it actually serves.
func New(origin, eventsPath string) *Broker {
	origin = strings.TrimSuffix(origin, `/`)
	return &Broker{
		origin:     origin,
		eventsURL:  origin + eventsPath,
		eventsPath: eventsPath,
		sse:        &sse.Server{},
	}
}

// A Broker publishes reload events to every subscribed browser.
type Broker struct {
	origin     string // where theme pages expect the dev client
	clientPath string
	eventsPath string
	sse        *sse.Server

	mu        sync.Mutex
	eventsURL string
}

// EventsURL returns the URL clients subscribe to for reload events.
func (b *Broker) EventsURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eventsURL
}

// API returns an api.Option serving the client script at clientPath and the event stream at the events path.
func (b *Broker) API(clientPath string) api.Option {
	b.clientPath = clientPath
	return api.Group(
		api.HandleFunc(`GET `+clientPath, b.serveClient),
		api.Handle(`GET `+b.eventsPath, b.sse),
	)
}

// Rig returns a rig option that reloads clients whenever a watched file changes.
func (b *Broker) Rig() rig.Option {
	return func(r *rig.Config) error {
		r.Hook(b)
		return nil
	}
}

var (
	_ hook.Change     = (*Broker)(nil)
	_ hook.AfterBuild = (*Broker)(nil)
	_ hook.Start      = (*Broker)(nil)
	_ hook.Serving    = (*Broker)(nil)
)

// RigServing implements hook.Serving.  Clients subscribe at the origin the rig actually serves, and a mismatch with
// the origin theme pages load the client from is reported, since those pages would never reach the client.
func (b *Broker) RigServing(ctx context.Context, origin string) {
	origin = strings.TrimSuffix(origin, `/`)
	b.mu.Lock()
	b.eventsURL = origin + b.eventsPath
	b.mu.Unlock()
	if origin != b.origin {
		hog.From(ctx).Warn().
			Str(`client`, b.origin+b.clientPath).
			Str(`serving`, origin).
			Msg(`theme pages load the dev client from dev.origin, which is not where the rig serves`)
	}
}

// RigStart closes every event stream once the rig shuts down, otherwise the HTTP server would wait on them forever.
func (b *Broker) RigStart(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = b.sse.Shutdown(context.Background())
	}()
	return nil
}

// RigChange implements hook.Change.
func (b *Broker) RigChange(ctx context.Context, path string) {
	_ = b.Reload(ctx, path)
}

// AfterBuild implements hook.AfterBuild, reloading clients after esbuild rebuilds the bundle.  A failure to publish
// is logged by Reload and does not fail the build.
func (b *Broker) AfterBuild(ctx context.Context) error {
	_ = b.Reload(ctx, `build`)
	return nil
}

// Reload publishes a reload event naming what changed.
func (b *Broker) Reload(ctx context.Context, reason string) error {
	msg := &sse.Message{Type: sse.Type(EventType)}
	msg.AppendData(reason)
	err := b.sse.Publish(msg)
	if err != nil {
		hog.From(ctx).Warn().Err(err).Str(`reason`, reason).Msg(`cannot publish reload`)
		return err
	}
	hog.From(ctx).Info().Str(`reason`, reason).Msg(`reloading clients`)
	return nil
}

func (b *Broker) serveClient(w http.ResponseWriter, r *http.Request) {
	url, _ := json.Marshal(b.EventsURL())
	w.Header().Set(`Content-Type`, `text/javascript; charset=utf-8`)
	w.Header().Set(`Cache-Control`, `no-store`)
	_, _ = w.Write([]byte(strings.ReplaceAll(clientScript, `EVENTS_URL`, string(url))))
}

const clientScript = `// development reload client
const source = new EventSource(EVENTS_URL);
source.addEventListener("reload", (event) => {
	console.info("[themerig] reloading after change to", event.data);
	location.reload();
});
`
