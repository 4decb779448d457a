package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-meter/common"
	"github.com/nvr-ai/go-meter/logging"
	"github.com/nvr-ai/go-meter/models/postprocess"
)

// stepClock returns the given instants in order, repeating the last.
func stepClock(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := ts[min(i, len(ts)-1)]
		i++
		return t
	}
}

func testOptions(now func() time.Time) Options {
	return Options{
		Now:         now,
		Environment: func() string { return "test-host" },
		Logger:      logging.Discard(),
	}
}

func solid(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 200, 30, 0), rows, cols, gocv.MatTypeCV8UC3)
}

type runImages struct {
	original, composite, region gocv.Mat
}

func newRunImages() runImages {
	return runImages{original: solid(48, 64), composite: solid(60, 64), region: solid(48, 64)}
}

func (r runImages) Close() {
	r.original.Close()
	r.composite.Close()
	r.region.Close()
}

func (r runImages) regionOnly() Artifacts {
	return Artifacts{
		Original:    r.original,
		Composite:   r.composite,
		Region:      r.region,
		RegionBatch: postprocess.NewBatch(nil, 5*time.Millisecond),
	}
}

func TestSaveWritesLayout(t *testing.T) {
	root := t.TempDir()
	at := time.Date(2024, 3, 5, 14, 7, 9, 123456789, time.UTC)
	store, err := Open(root, testOptions(stepClock(at)))
	require.NoError(t, err)

	imgs := newRunImages()
	defer imgs.Close()
	screen := solid(17, 26)
	defer screen.Close()
	digits := solid(17, 52)
	defer digits.Close()

	a := imgs.regionOnly()
	a.Screen = common.Some(screen)
	a.Digits = common.Some(digits)
	a.DigitsBatch = common.Some(postprocess.NewBatch(nil, time.Millisecond))

	rec, err := store.Save(a)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-05-14-07-09-123", rec.Timestamp)
	assert.Equal(t, filepath.Join(store.Root(), rec.Timestamp), rec.Dir)
	for _, suffix := range []string{".jpg", "_results.jpg", "_counter.jpg", "_screen.jpg", "_digits.jpg", "_info.txt"} {
		assert.FileExists(t, filepath.Join(rec.Dir, rec.Timestamp+suffix))
	}
	assert.Len(t, rec.Artifacts, 6)

	loaded := gocv.IMRead(rec.Artifacts[ArtifactOriginal], gocv.IMReadColor)
	defer loaded.Close()
	assert.Equal(t, 64, loaded.Cols())
	assert.Equal(t, 48, loaded.Rows())
}

func TestSaveRegionOnlyReportsNone(t *testing.T) {
	store, err := Open(t.TempDir(), testOptions(stepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, err)

	imgs := newRunImages()
	defer imgs.Close()

	rec, err := store.Save(imgs.regionOnly())
	require.NoError(t, err)

	_, ok := rec.Path(ArtifactScreen)
	assert.False(t, ok)
	_, ok = rec.Path(ArtifactDigits)
	assert.False(t, ok)

	report, err := os.ReadFile(rec.Artifacts[ArtifactReport])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(report)), "\n")
	assert.Equal(t, "test-host", lines[0])
	assert.Equal(t, "Detection stage #1: Digits", lines[4])
	assert.Equal(t, "none", lines[5])
}

func TestGalleryOrderSurvivesRestart(t *testing.T) {
	root := t.TempDir()
	t1 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(1500 * time.Millisecond)
	t3 := t1.Add(time.Hour)

	store, err := Open(root, testOptions(stepClock(t1, t2, t3)))
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
	assert.False(t, store.Latest().Present())

	imgs := newRunImages()
	defer imgs.Close()
	for i := 0; i < 3; i++ {
		_, err := store.Save(imgs.regionOnly())
		require.NoError(t, err)
	}

	want := []string{
		"2024-05-01-10-00-00-000",
		"2024-05-01-09-00-01-500",
		"2024-05-01-09-00-00-000",
	}
	assert.Equal(t, want, stamps(store.Gallery()))

	latest, ok := store.Latest().Get()
	require.True(t, ok)
	assert.Equal(t, want[0], latest.Timestamp)

	reopened, err := Open(root, testOptions(time.Now))
	require.NoError(t, err)
	assert.Equal(t, want, stamps(reopened.Gallery()))
	assert.Equal(t, store.Gallery()[1].Artifacts, reopened.Gallery()[1].Artifacts)
}

func TestSameMillisecondSavesDoNotOverwrite(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 7_000_000, time.UTC)
	store, err := Open(t.TempDir(), testOptions(stepClock(at)))
	require.NoError(t, err)

	imgs := newRunImages()
	defer imgs.Close()

	first, err := store.Save(imgs.regionOnly())
	require.NoError(t, err)
	second, err := store.Save(imgs.regionOnly())
	require.NoError(t, err)
	third, err := store.Save(imgs.regionOnly())
	require.NoError(t, err)

	assert.Equal(t, "2024-05-01-09-00-00-007", first.Timestamp)
	assert.Equal(t, "2024-05-01-09-00-00-007_1", second.Timestamp)
	assert.Equal(t, "2024-05-01-09-00-00-007_2", third.Timestamp)
	assert.FileExists(t, filepath.Join(second.Dir, "2024-05-01-09-00-00-007_1_results.jpg"))
	assert.Equal(t, []string{third.Timestamp, second.Timestamp, first.Timestamp}, stamps(store.Gallery()))

	reopened, err := Open(store.Root(), testOptions(time.Now))
	require.NoError(t, err)
	assert.Equal(t, stamps(store.Gallery()), stamps(reopened.Gallery()))
}

func TestOpenSkipsIncompleteDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2024-01-01-00-00-00-000"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "2024-01-01-00-00-00-000", "2024-01-01-00-00-00-000.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

	complete := filepath.Join(root, "2023-12-31-23-59-59-999")
	require.NoError(t, os.MkdirAll(complete, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(complete, "2023-12-31-23-59-59-999_results.jpg"), []byte("x"), 0o644))

	store, err := Open(root, testOptions(time.Now))
	require.NoError(t, err)
	assert.Equal(t, []string{"2023-12-31-23-59-59-999"}, stamps(store.Gallery()))
}

func TestOpenCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ElectroCounters")
	_, err := Open(root, testOptions(time.Now))
	require.NoError(t, err)
	assert.DirExists(t, root)
}

func TestSaveFailureLeavesNoTrace(t *testing.T) {
	store, err := Open(t.TempDir(), testOptions(stepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, err)

	empty := gocv.NewMat()
	defer empty.Close()
	imgs := newRunImages()
	defer imgs.Close()

	a := imgs.regionOnly()
	a.Original = empty
	_, err = store.Save(a)
	require.Error(t, err)

	entries, err := os.ReadDir(store.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, store.Len())
}

func TestGalleryReturnsCopy(t *testing.T) {
	store, err := Open(t.TempDir(), testOptions(stepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, err)
	imgs := newRunImages()
	defer imgs.Close()
	_, err = store.Save(imgs.regionOnly())
	require.NoError(t, err)

	g := store.Gallery()
	g[0].Timestamp = "mutated"
	assert.NotEqual(t, "mutated", store.Gallery()[0].Timestamp)
}

func TestThumbnail(t *testing.T) {
	store, err := Open(t.TempDir(), testOptions(stepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, err)
	imgs := newRunImages()
	defer imgs.Close()
	rec, err := store.Save(imgs.regionOnly())
	require.NoError(t, err)

	thumb, err := Thumbnail(rec, 32)
	require.NoError(t, err)
	assert.LessOrEqual(t, thumb.Bounds().Dx(), 32)
	assert.LessOrEqual(t, thumb.Bounds().Dy(), 32)

	dst := filepath.Join(t.TempDir(), "thumb.jpg")
	require.NoError(t, WriteThumbnail(rec, dst, 32))
	assert.FileExists(t, dst)

	_, err = Thumbnail(Record{Timestamp: "x"}, 32)
	assert.Error(t, err)
}

func stamps(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Timestamp
	}
	return out
}
