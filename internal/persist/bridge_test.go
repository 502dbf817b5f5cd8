package persist

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LocalWhiteboard/internal/raster"
	"LocalWhiteboard/internal/state"
	"LocalWhiteboard/internal/storage"
)

const w, h = 160, 120

func newBoard(t *testing.T) *state.Controller {
	t.Helper()
	r, err := raster.New(w, h)
	require.NoError(t, err)
	c, err := state.New(r, state.DefaultOptions())
	require.NoError(t, err)
	return c
}

func drag(t *testing.T, c *state.Controller, tool state.Tool, from, to raster.Point) {
	t.Helper()
	require.NoError(t, c.SetTool(tool))
	c.Begin(from)
	c.Continue(to)
	c.End(to)
}

func drawEverything(t *testing.T, c *state.Controller) {
	t.Helper()
	drag(t, c, state.ToolFreehand, raster.Pt(5, 5), raster.Pt(60, 40))
	drag(t, c, state.ToolLine, raster.Pt(5, 100), raster.Pt(150, 110))
	drag(t, c, state.ToolRectangle, raster.Pt(70, 10), raster.Pt(120, 60))
	drag(t, c, state.ToolCircle, raster.Pt(40, 70), raster.Pt(55, 70))
	drag(t, c, state.ToolEraser, raster.Pt(60, 30), raster.Pt(100, 30))
	require.NoError(t, c.SetTool(state.ToolText))
	c.Begin(raster.Pt(90, 90))
	c.End(raster.Pt(90, 90))
	c.TypeKey("o")
	c.TypeKey("k")
	c.TypeKey(state.KeyEnter)
}

func readRecord(t *testing.T, s storage.Store) Record {
	t.Helper()
	data, err := s.Get(context.Background(), DefaultKey)
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	return rec
}

func writeRecord(t *testing.T, s storage.Store, rec Record) {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), DefaultKey, data))
}

func encode(t *testing.T, s raster.Snapshot) string {
	t.Helper()
	v, err := raster.Encode(s)
	require.NoError(t, err)
	return v
}

// flakyStore fails writes while fail is set.
type flakyStore struct {
	storage.Store
	mu   sync.Mutex
	fail bool
}

func (f *flakyStore) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return storage.ErrQuotaExceeded
	}
	return f.Store.Set(ctx, key, value)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	scope := storage.NewMemoryScope(0)

	src := newBoard(t)
	drawEverything(t, src)
	require.NoError(t, New(scope.Open(), "", src).Save(ctx))

	dst := newBoard(t)
	ok, err := New(scope.Open(), "", dst).Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	wantCur, wantHist := src.State()
	gotCur, gotHist := dst.State()
	assert.True(t, gotCur.Equal(wantCur))
	require.Len(t, gotHist, len(wantHist))
	for i := range wantHist {
		assert.True(t, gotHist[i].Equal(wantHist[i]), "history %d", i)
	}
	assert.Zero(t, dst.RedoLen())

	require.True(t, dst.Undo())
	assert.True(t, dst.Snapshot().Equal(wantHist[len(wantHist)-1]))
}

func TestSave_RecordFormat(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryScope(0).Open()
	c := newBoard(t)
	drag(t, c, state.ToolRectangle, raster.Pt(10, 10), raster.Pt(50, 50))
	require.NoError(t, New(store, "", c).Save(ctx))

	data, err := store.Get(ctx, DefaultKey)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.ElementsMatch(t, []string{"timestamp", "imageData", "history"}, keys(raw))

	rec := readRecord(t, store)
	assert.Contains(t, rec.ImageData, "data:image/png;base64,")
	require.Len(t, rec.History, 1)
	assert.Positive(t, rec.Timestamp)
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestLoad_Absent(t *testing.T) {
	c := newBoard(t)
	ok, err := New(storage.NewMemoryScope(0).Open(), "", c).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, c.Snapshot().Equal(raster.Blank(w, h)))
	assert.Zero(t, c.HistoryLen())
}

func TestLoad_MalformedLeavesStateUntouched(t *testing.T) {
	for name, data := range map[string]string{
		"not json":   "{{{",
		"bad image":  `{"timestamp":1,"imageData":"data:image/png;base64,AAAA","history":[]}`,
		"no image":   `{"timestamp":1,"history":[]}`,
		"wrong type": `{"timestamp":"x","imageData":"","history":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := storage.NewMemoryScope(0).Open()
			require.NoError(t, store.Set(ctx, DefaultKey, []byte(data)))

			c := newBoard(t)
			drag(t, c, state.ToolRectangle, raster.Pt(10, 10), raster.Pt(50, 50))
			before, hist := c.State()

			ok, err := New(store, "", c).Load(ctx)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.True(t, c.Snapshot().Equal(before))
			assert.Equal(t, len(hist), c.HistoryLen())
		})
	}
}

func TestLoad_DropsBadHistoryEntries(t *testing.T) {
	store := storage.NewMemoryScope(0).Open()
	src := newBoard(t)
	drag(t, src, state.ToolRectangle, raster.Pt(10, 10), raster.Pt(50, 50))
	drag(t, src, state.ToolCircle, raster.Pt(100, 60), raster.Pt(110, 60))
	cur, hist := src.State()

	writeRecord(t, store, Record{
		Timestamp: 1,
		ImageData: encode(t, cur),
		History:   []string{encode(t, hist[0]), "garbage", encode(t, hist[1])},
	})

	dst := newBoard(t)
	ok, err := New(store, "", dst).Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	_, got := dst.State()
	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(hist[0]))
	assert.True(t, got[1].Equal(hist[1]))
}

func TestLoad_CropsAndPadsOtherSizes(t *testing.T) {
	store := storage.NewMemoryScope(0).Open()
	big, err := raster.New(w+40, h+40)
	require.NoError(t, err)
	require.NoError(t, big.StrokeSegment(raster.Pt(0, 5), raster.Pt(float64(w+39), 5), raster.Style{Color: color.NRGBA{A: 255}, Width: 4}))
	writeRecord(t, store, Record{Timestamp: 1, ImageData: encode(t, big.Snapshot()), History: []string{encode(t, raster.Blank(10, 10))}})

	c := newBoard(t)
	ok, err := New(store, "", c).Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Positive(t, c.Image().NRGBAAt(w-1, 5).A)
	assert.Equal(t, 1, c.HistoryLen())
}

func TestSave_ReusesCachedEncodings(t *testing.T) {
	ctx := context.Background()
	c := newBoard(t)
	b := New(storage.NewMemoryScope(0).Open(), "", c)

	for i := range 3 {
		drag(t, c, state.ToolLine, raster.Pt(5, float64(10+10*i)), raster.Pt(150, float64(10+10*i)))
	}
	require.NoError(t, b.Save(ctx))
	assert.Equal(t, 4, b.encodes, "current plus three checkpoints")

	drag(t, c, state.ToolLine, raster.Pt(5, 80), raster.Pt(150, 80))
	require.NoError(t, b.Save(ctx))
	assert.Equal(t, 6, b.encodes, "only the new checkpoint and the current raster")
}

func TestSave_AfterLoadReusesLoadedEncodings(t *testing.T) {
	ctx := context.Background()
	scope := storage.NewMemoryScope(0)
	src := newBoard(t)
	drawEverything(t, src)
	require.NoError(t, New(scope.Open(), "", src).Save(ctx))

	dst := newBoard(t)
	b := New(scope.Open(), "", dst)
	_, err := b.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Save(ctx))
	assert.Equal(t, 1, b.encodes)
}

func TestSave_TimestampsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryScope(0).Open()
	fixed := time.UnixMilli(1_700_000_000_000)
	c := newBoard(t)
	b := New(store, "", c, WithClock(func() time.Time { return fixed }))

	var last int64
	for range 5 {
		require.NoError(t, b.Save(ctx))
		ts := readRecord(t, store).Timestamp
		assert.Greater(t, ts, last)
		last = ts
	}
	assert.Equal(t, fixed.UnixMilli()+4, last)
}

func TestSave_StampsAfterLoadedRecord(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryScope(0).Open()
	future := time.Now().Add(time.Hour).UnixMilli()
	writeRecord(t, store, Record{Timestamp: future, ImageData: encode(t, raster.Blank(w, h))})

	b := New(store, "", newBoard(t))
	ok, err := b.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, b.Save(ctx))
	assert.Greater(t, readRecord(t, store).Timestamp, future)
}

func TestSave_QuotaWarnsOncePerFailureRun(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: storage.NewMemoryScope(0).Open()}
	var warnings []error
	b := New(store, "", newBoard(t), OnWarning(func(err error) { warnings = append(warnings, err) }))

	store.setFail(true)
	for range 3 {
		err := b.Save(ctx)
		assert.ErrorIs(t, err, storage.ErrQuotaExceeded)
	}
	assert.Len(t, warnings, 1)

	store.setFail(false)
	require.NoError(t, b.Save(ctx))
	store.setFail(true)
	assert.Error(t, b.Save(ctx))
	assert.Len(t, warnings, 2)
}

func TestSave_MemoryQuota(t *testing.T) {
	c := newBoard(t)
	drawEverything(t, c)
	err := New(storage.NewMemoryScope(64).Open(), "", c).Save(context.Background())
	assert.True(t, errors.Is(err, storage.ErrQuotaExceeded))
}

func TestWatch_ExternalWriteReloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scope := storage.NewMemoryScope(0)

	writer := newBoard(t)
	reader := newBoard(t)
	var dispatched sync.WaitGroup
	dispatched.Add(1)
	var once sync.Once
	rb := New(scope.Open(), "", reader, Dispatch(func(fn func()) {
		fn()
		once.Do(dispatched.Done)
	}))

	done := make(chan error, 1)
	go func() { done <- rb.Watch(ctx) }()

	wb := New(scope.Open(), "", writer)
	drag(t, writer, state.ToolCircle, raster.Pt(80, 60), raster.Pt(100, 60))
	want := writer.Snapshot()
	require.Eventually(t, func() bool {
		// the watcher may subscribe after the first save
		if err := wb.Save(ctx); err != nil {
			return false
		}
		return reader.Snapshot().Equal(want)
	}, 5*time.Second, 20*time.Millisecond)
	dispatched.Wait()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_MalformedExternalWriteIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scope := storage.NewMemoryScope(0)

	reader := newBoard(t)
	drag(t, reader, state.ToolRectangle, raster.Pt(10, 10), raster.Pt(50, 50))
	before := reader.Snapshot()

	reloads := make(chan struct{}, 16)
	rb := New(scope.Open(), "", reader, Dispatch(func(fn func()) {
		fn()
		reloads <- struct{}{}
	}))
	go func() { _ = rb.Watch(ctx) }()

	other := scope.Open()
	require.Eventually(t, func() bool {
		if err := other.Set(ctx, DefaultKey, []byte("not a record")); err != nil {
			return false
		}
		select {
		case <-reloads:
			return true
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, reader.Snapshot().Equal(before))
}
