package demo

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keenstore-dev/keenstore/pkg/live"
)

// Client-side view of the wire, limited to the fields these tests read.
type wireFragment struct {
	ID   string `json:"id"`
	HTML string `json:"html"`
}

type wireFrame struct {
	T     string         `json:"t"`
	SID   string         `json:"sid"`
	Frags []wireFragment `json:"frags"`
}

// newDemoServer serves a fresh app over httptest and returns the app
// with the base HTTP URL.
func newDemoServer(t *testing.T) (*App, string) {
	t.Helper()
	app := New()
	t.Cleanup(app.Close)

	srv := app.Server(live.DefaultServerConfig())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return app, ts.URL
}

// dialDemo connects a client. The gorilla dialer sends no Origin header,
// so the default same-origin check admits it.
func dialDemo(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/live/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWireFrame(t *testing.T, conn *websocket.Conn) *wireFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return &f
}

func sendClick(t *testing.T, conn *websocket.Conn, instanceID, token string) {
	t.Helper()
	data, err := json.Marshal(map[string]string{"t": "ev", "i": instanceID, "h": token})
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write event: %v", err)
	}
}

// fragByID finds a fragment in a patch, which orders fragments by id
// rather than by mount position.
func fragByID(t *testing.T, f *wireFrame, id string) wireFragment {
	t.Helper()
	for _, frag := range f.Frags {
		if frag.ID == id {
			return frag
		}
	}
	t.Fatalf("no fragment %q in frame (got %d fragments)", id, len(f.Frags))
	return wireFragment{}
}

func TestInitFrameCarriesAllPanels(t *testing.T) {
	_, base := newDemoServer(t)
	conn := dialDemo(t, base)

	init := readWireFrame(t, conn)
	if init.T != "init" {
		t.Fatalf("first frame type = %q, want init", init.T)
	}
	if len(init.Frags) != 4 {
		t.Fatalf("init fragments = %d, want 4", len(init.Frags))
	}

	// Mount order: counter, audit, milestone, then the legend root.
	for i, want := range []string{"panel counter", "panel audit", "panel milestone", "legend"} {
		if !strings.Contains(init.Frags[i].HTML, want) {
			t.Errorf("fragment %d does not contain %q:\n%s", i, want, init.Frags[i].HTML)
		}
	}
	if !strings.Contains(init.Frags[0].HTML, "<strong>0</strong>") {
		t.Errorf("counter does not start at zero:\n%s", init.Frags[0].HTML)
	}
}

func TestClickReachesEveryConnectedSession(t *testing.T) {
	_, base := newDemoServer(t)

	connA := dialDemo(t, base)
	initA := readWireFrame(t, connA)
	connB := dialDemo(t, base)
	initB := readWireFrame(t, connB)

	if initA.SID == initB.SID {
		t.Fatalf("sessions share an id: %q", initA.SID)
	}

	// Increment from session A.
	sendClick(t, connA, initA.Frags[0].ID, incToken)

	patchA := readWireFrame(t, connA)
	if patchA.T != "patch" {
		t.Fatalf("frame type = %q, want patch", patchA.T)
	}
	if got := fragByID(t, patchA, initA.Frags[0].ID); !strings.Contains(got.HTML, "<strong>1</strong>") {
		t.Errorf("session A counter after click:\n%s", got.HTML)
	}

	// Session B's counter panel updates without B doing anything.
	patchB := readWireFrame(t, connB)
	if got := fragByID(t, patchB, initB.Frags[0].ID); !strings.Contains(got.HTML, "<strong>1</strong>") {
		t.Errorf("session B counter after A's click:\n%s", got.HTML)
	}
	// Only the counter panel moved: 0 to 1 crosses no milestone, and
	// audit panels never subscribe.
	if len(patchB.Frags) != 1 {
		t.Errorf("session B patch fragments = %d, want 1", len(patchB.Frags))
	}
}

func TestMilestoneWriteUpdatesBothPanels(t *testing.T) {
	app, base := newDemoServer(t)

	conn := dialDemo(t, base)
	init := readWireFrame(t, conn)

	// A write straight to the shared store dirties the counter and the
	// milestone panel. Depending on when the loop wakes they arrive in
	// one patch frame or two.
	app.Store.Set(CounterState{Counter: 10})

	seen := map[string]string{}
	for len(seen) < 2 {
		patch := readWireFrame(t, conn)
		for _, frag := range patch.Frags {
			seen[frag.ID] = frag.HTML
		}
	}

	if got := seen[init.Frags[0].ID]; !strings.Contains(got, "<strong>10</strong>") {
		t.Errorf("counter panel:\n%s", got)
	}
	if got := seen[init.Frags[2].ID]; !strings.Contains(got, "Last milestone: <strong>10</strong>") {
		t.Errorf("milestone panel:\n%s", got)
	}
	if _, ok := seen[init.Frags[1].ID]; ok {
		t.Error("audit panel re-rendered on an external write")
	}
	if _, ok := seen[init.Frags[3].ID]; ok {
		t.Error("legend re-rendered on an external write")
	}
}

func TestSessionCloseReleasesSharedBindings(t *testing.T) {
	app, base := newDemoServer(t)

	// The app's own meter plus the counter and milestone bindings; the
	// audit panel holds no subscription.
	conn := dialDemo(t, base)
	readWireFrame(t, conn)
	if got := app.Store.Len(); got != 3 {
		t.Fatalf("subscriptions with one session = %d, want 3", got)
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for app.Store.Len() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriptions after close = %d, want 1", app.Store.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSurvivingSessionKeepsCounting(t *testing.T) {
	_, base := newDemoServer(t)

	connA := dialDemo(t, base)
	initA := readWireFrame(t, connA)
	connB := dialDemo(t, base)
	initB := readWireFrame(t, connB)

	sendClick(t, connA, initA.Frags[0].ID, incToken)
	readWireFrame(t, connA)
	readWireFrame(t, connB)

	connA.Close()

	// B picks up where A left off.
	sendClick(t, connB, initB.Frags[0].ID, incToken)
	patch := readWireFrame(t, connB)
	if got := fragByID(t, patch, initB.Frags[0].ID); !strings.Contains(got.HTML, "<strong>2</strong>") {
		t.Errorf("counter after surviving session's click:\n%s", got.HTML)
	}
}
