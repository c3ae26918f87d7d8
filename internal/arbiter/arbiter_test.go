package arbiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wnpbridge/internal/models"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs []models.PortMessage
	// reply, when set, answers execute requests.
	reply func(models.PortMessage)
	err   error
}

func (f *fakeSender) Send(msg models.PortMessage) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	reply, err := f.reply, f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if reply != nil && msg.Event == models.PortExecute {
		go reply(msg)
	}
	return nil
}

func (f *fakeSender) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.Event)
	}
	return out
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []*models.MediaInfo
}

func (r *recordingSink) SendUpdate(info *models.MediaInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, info)
}

func (r *recordingSink) last() *models.MediaInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(sec int64) {
	c.mu.Lock()
	c.now = time.Unix(sec, 0)
	c.mu.Unlock()
}

func newTestArbiter(t *testing.T, opts ...Option) (*Arbiter, *clock, *recordingSink) {
	t.Helper()
	clk := &clock{now: time.Unix(1, 0)}
	a := New(append([]Option{WithClock(clk.Now), WithGrace(30 * time.Millisecond)}, opts...)...)
	sink := &recordingSink{}
	a.AddSink(sink)
	return a, clk, sink
}

func update(state models.PlaybackState, title string, volume int) models.MediaUpdate {
	return models.MediaUpdate{
		State:  models.Ptr(state),
		Title:  models.Ptr(title),
		Volume: models.Ptr(volume),
	}
}

func TestOpen_RequestsMediaInfo(t *testing.T) {
	a, _, sink := newTestArbiter(t)
	s := &fakeSender{}
	a.Open("tab-a", s)

	assert.Equal(t, []string{models.PortGetMediaInfo}, s.events())
	assert.Nil(t, sink.last(), "a tab without updates has no player")
	_, ok := a.Current()
	assert.False(t, ok)
}

func TestElect_PrefersAudibleOverNewer(t *testing.T) {
	a, clk, sink := newTestArbiter(t)
	for _, tok := range []string{"A", "B", "C"} {
		a.Open(tok, &fakeSender{})
	}

	clk.Set(100)
	a.Update("A", update(models.StatePaused, "a", 50))
	clk.Set(200)
	a.Update("B", update(models.StatePlaying, "b", 0))
	clk.Set(150)
	a.Update("C", update(models.StatePlaying, "c", 80))

	cur, ok := a.Current()
	require.True(t, ok)
	assert.Equal(t, "c", cur.Title)
	require.NotNil(t, sink.last())
	assert.Equal(t, "c", sink.last().Title)
}

// refTab mirrors one tab for the reference election below.
type refTab struct {
	token string
	seq   int
	seen  bool
	info  models.MediaInfo
}

// referenceElection returns the token of the newest audible tab, else the
// newest tab, ranking by significant-change time and then by open order.
func referenceElection(tabs []*refTab) string {
	var ranked []*refTab
	for _, tab := range tabs {
		if tab.seen {
			ranked = append(ranked, tab)
		}
	}
	if len(ranked) == 0 {
		return ""
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		ti, tj := ranked[i].info.Timestamp, ranked[j].info.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ranked[i].seq > ranked[j].seq
	})
	for _, tab := range ranked {
		if tab.info.State == models.StatePlaying && tab.info.Volume != 0 {
			return tab.token
		}
	}
	return ranked[0].token
}

func randomUpdate(rng *rand.Rand) models.MediaUpdate {
	states := []models.PlaybackState{models.StateStopped, models.StatePlaying, models.StatePaused}
	titles := []string{"", "one", "two"}
	volumes := []int{0, 30, 80}
	var u models.MediaUpdate
	if rng.Intn(2) == 0 {
		u.State = models.Ptr(states[rng.Intn(len(states))])
	}
	if rng.Intn(3) == 0 {
		u.Title = models.Ptr(titles[rng.Intn(len(titles))])
	}
	if rng.Intn(3) == 0 {
		u.Volume = models.Ptr(volumes[rng.Intn(len(volumes))])
	}
	if rng.Intn(2) == 0 {
		u.PositionSeconds = models.Ptr(rng.Intn(300))
	}
	if rng.Intn(4) == 0 {
		u.Artist = models.Ptr(titles[rng.Intn(len(titles))])
	}
	return u
}

func TestElect_RandomSequencesMatchReference(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			a, clk, _ := newTestArbiter(t)

			var tabs []*refTab
			for i := range 4 {
				tok := fmt.Sprintf("tab-%d", i)
				a.Open(tok, &fakeSender{})
				tabs = append(tabs, &refTab{token: tok, seq: i, info: models.DefaultMediaInfo()})
			}

			for step := range 300 {
				clk.Set(int64(100 + step))
				tab := tabs[rng.Intn(len(tabs))]
				u := randomUpdate(rng)
				a.Update(tab.token, u)
				tab.seen = true
				tab.info.Apply(u, clk.Now())

				want := referenceElection(tabs)
				var got string
				for _, ti := range a.Tabs() {
					if ti.Authoritative {
						got = ti.Token
					}
				}
				require.Equal(t, want, got, "step %d: update %s", step, describe(u))
			}
		})
	}
}

func describe(u models.MediaUpdate) string {
	data, _ := json.Marshal(u)
	return string(data)
}

func TestElect_FallsBackToNewest(t *testing.T) {
	a, clk, _ := newTestArbiter(t)
	a.Open("A", &fakeSender{})
	a.Open("B", &fakeSender{})

	clk.Set(100)
	a.Update("A", update(models.StatePaused, "a", 50))
	clk.Set(200)
	a.Update("B", update(models.StatePaused, "b", 50))

	cur, _ := a.Current()
	assert.Equal(t, "b", cur.Title)
}

func TestElect_TieGoesToNewerChannel(t *testing.T) {
	a, clk, _ := newTestArbiter(t)
	a.Open("A", &fakeSender{})
	a.Open("B", &fakeSender{})

	clk.Set(100)
	a.Update("A", update(models.StatePaused, "a", 50))
	a.Update("B", update(models.StatePaused, "b", 50))

	cur, _ := a.Current()
	assert.Equal(t, "b", cur.Title)
}

func TestUpdate_PositionOnlyKeepsTimestamp(t *testing.T) {
	a, clk, _ := newTestArbiter(t)
	a.Open("A", &fakeSender{})
	clk.Set(100)
	a.Update("A", update(models.StatePlaying, "a", 50))
	clk.Set(300)
	a.Update("A", models.MediaUpdate{PositionSeconds: models.Ptr(42)})

	cur, _ := a.Current()
	assert.Equal(t, 42, cur.PositionSeconds)
	assert.Equal(t, time.Unix(100, 0), cur.Timestamp)
}

func TestUpdate_UnknownTokenIgnored(t *testing.T) {
	a, _, sink := newTestArbiter(t)
	a.Update("ghost", update(models.StatePlaying, "x", 50))
	assert.Nil(t, sink.last())
	assert.Empty(t, a.Tabs())
}

func TestReceive_DecodesUpdate(t *testing.T) {
	a, _, _ := newTestArbiter(t)
	a.Open("A", &fakeSender{})
	a.Receive("A", models.PortMessage{
		Event:     models.PortMediaInfo,
		MediaInfo: json.RawMessage(`{"state":"PLAYING","title":"x","volume":"loud","bogus":1}`),
	})
	cur, ok := a.Current()
	require.True(t, ok)
	assert.Equal(t, "x", cur.Title)
	assert.Equal(t, 100, cur.Volume, "malformed field dropped")
}

func TestClose_GraceThenEvict(t *testing.T) {
	a, clk, sink := newTestArbiter(t)
	a.Open("A", &fakeSender{})
	clk.Set(100)
	a.Update("A", update(models.StatePlaying, "a", 50))

	a.Close("A")
	tabs := a.Tabs()
	require.Len(t, tabs, 1)
	assert.False(t, tabs[0].Connected)

	require.Eventually(t, func() bool { return len(a.Tabs()) == 0 }, time.Second, 5*time.Millisecond)
	_, ok := a.Current()
	assert.False(t, ok)
	require.Eventually(t, func() bool { return sink.last() == nil }, time.Second, 5*time.Millisecond)
}

func TestDetach_IgnoresStaleSender(t *testing.T) {
	a, _, _ := newTestArbiter(t)
	old, cur := &fakeSender{}, &fakeSender{}
	a.Open("A", old)
	a.Open("A", cur)

	a.Detach("A", old)
	require.Len(t, a.Tabs(), 1)
	assert.True(t, a.Tabs()[0].Connected)

	a.Detach("A", cur)
	assert.False(t, a.Tabs()[0].Connected)
}

func TestClose_ReopenWithinGraceKeepsTab(t *testing.T) {
	a, clk, _ := newTestArbiter(t, WithGrace(50*time.Millisecond))
	a.Open("A", &fakeSender{})
	clk.Set(100)
	a.Update("A", update(models.StatePlaying, "a", 50))

	a.Close("A")
	a.Open("A", &fakeSender{})
	time.Sleep(100 * time.Millisecond)

	cur, ok := a.Current()
	require.True(t, ok)
	assert.Equal(t, "a", cur.Title)
	assert.True(t, a.Tabs()[0].Connected)
}

func TestExecute_RoundTrip(t *testing.T) {
	a, clk, _ := newTestArbiter(t)
	var got models.Command
	var frame models.PortMessage
	s := &fakeSender{}
	s.reply = func(m models.PortMessage) {
		frame = m
		json.Unmarshal(m.MediaEventData, &got)
		a.Receive("A", models.PortMessage{Event: models.PortExecuteResult, ID: m.ID})
	}
	a.Open("A", s)
	clk.Set(100)
	a.Update("A", update(models.StatePlaying, "a", 50))

	err := a.Execute(context.Background(), models.Command{Action: models.ActionSetVolume, Value: 30, CommunicationRevision: models.Revision2})
	require.NoError(t, err)
	assert.Equal(t, models.PortExecute, frame.Event)
	assert.Equal(t, models.Revision2, frame.CommunicationRevision)
	assert.Equal(t, models.ActionSetVolume, got.Action)
	assert.Equal(t, 30, got.Value)
}

func TestExecute_UnsupportedResult(t *testing.T) {
	a, clk, _ := newTestArbiter(t)
	s := &fakeSender{}
	s.reply = func(m models.PortMessage) {
		a.Receive("A", models.PortMessage{Event: models.PortExecuteResult, ID: m.ID, Unsupported: true, Error: "nope"})
	}
	a.Open("A", s)
	clk.Set(100)
	a.Update("A", update(models.StatePlaying, "a", 50))

	err := a.Execute(context.Background(), models.Command{Action: models.ActionSkipNext})
	require.ErrorIs(t, err, models.ErrUnsupported)
}

func TestExecute_NoPlayer(t *testing.T) {
	a, _, _ := newTestArbiter(t)
	err := a.Execute(context.Background(), models.Command{Action: models.ActionSkipNext})
	require.ErrorIs(t, err, models.ErrNoPlayer)
}

func TestExecute_Timeout(t *testing.T) {
	a, clk, _ := newTestArbiter(t, WithExecuteTimeout(20*time.Millisecond))
	a.Open("A", &fakeSender{})
	clk.Set(100)
	a.Update("A", update(models.StatePlaying, "a", 50))

	err := a.Execute(context.Background(), models.Command{Action: models.ActionSkipNext})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestExecute_SendFailure(t *testing.T) {
	a, clk, _ := newTestArbiter(t)
	a.Open("A", &fakeSender{})
	clk.Set(100)
	a.Update("A", update(models.StatePlaying, "a", 50))
	a.Open("A", &fakeSender{err: errors.New("broken pipe")})

	err := a.Execute(context.Background(), models.Command{Action: models.ActionSkipNext})
	require.ErrorIs(t, err, ErrTabClosed)
}

func TestSubscribe_ReceivesSnapshots(t *testing.T) {
	a, clk, _ := newTestArbiter(t)
	ch := a.Subscribe()
	defer a.Unsubscribe(ch)

	a.Open("A", &fakeSender{})
	<-ch // open dispatch
	clk.Set(100)
	a.Update("A", update(models.StatePlaying, "a", 50))

	select {
	case snap := <-ch:
		require.NotNil(t, snap)
		assert.Equal(t, "a", snap.Title)
	case <-time.After(time.Second):
		t.Fatal("no snapshot")
	}
}

func TestStart_TicksDispatch(t *testing.T) {
	a, _, sink := newTestArbiter(t, WithInterval(10*time.Millisecond))
	a.Start(context.Background())
	defer a.Stop()

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.snaps) >= 3
	}, time.Second, 5*time.Millisecond)
}
