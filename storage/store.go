// Package storage persists pipeline results into timestamped directories and
// keeps a newest-first index of them.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-meter/common"
	"github.com/nvr-ai/go-meter/models/postprocess"
	"github.com/nvr-ai/go-meter/sysinfo"
)

// TimestampLayout is the fixed-width, lexicographically sortable part of a
// result directory name. Milliseconds are appended as "-SSS".
const TimestampLayout = "2006-01-02-15-04-05"

// Artifact names one file in a result directory.
type Artifact string

// Artifacts written per run. The value is the file name suffix after the timestamp.
const (
	ArtifactOriginal  Artifact = ".jpg"
	ArtifactComposite Artifact = "_results.jpg"
	ArtifactRegion    Artifact = "_counter.jpg"
	ArtifactScreen    Artifact = "_screen.jpg"
	ArtifactDigits    Artifact = "_digits.jpg"
	ArtifactReport    Artifact = "_info.txt"
)

var allArtifacts = []Artifact{
	ArtifactOriginal, ArtifactComposite, ArtifactRegion, ArtifactScreen, ArtifactDigits, ArtifactReport,
}

// Record is one saved run. It is never modified after creation.
type Record struct {
	// Dir is the absolute result directory.
	Dir string
	// Timestamp is the directory name, which prefixes every artifact.
	Timestamp string
	// Artifacts maps each written artifact to its path.
	Artifacts map[Artifact]string
}

// Path returns the file path of artifact a, if it was written.
func (r Record) Path(a Artifact) (string, bool) {
	p, ok := r.Artifacts[a]
	return p, ok
}

// Artifacts is everything produced by one run. The store does not take ownership of the Mats.
type Artifacts struct {
	Original  gocv.Mat
	Composite gocv.Mat
	Region    gocv.Mat
	Screen    common.Optional[gocv.Mat]
	Digits    common.Optional[gocv.Mat]

	RegionBatch postprocess.Batch
	DigitsBatch common.Optional[postprocess.Batch]
}

// Options configures a Store.
type Options struct {
	// Quality is the JPEG quality of the visualisations and crop.
	Quality int
	// OriginalQuality is the JPEG quality of the untouched frame.
	OriginalQuality int
	// Now supplies the directory timestamp.
	Now func() time.Time
	// Environment supplies the first line of every report.
	Environment func() string
	// Logger receives save and scan events.
	Logger *slog.Logger
}

// DefaultOptions returns quality 50 for results and 100 for the original frame.
func DefaultOptions() Options {
	return Options{
		Quality:         50,
		OriginalQuality: 100,
		Now:             time.Now,
		Environment:     sysinfo.Describe,
		Logger:          slog.Default(),
	}
}

// Store owns a result root directory and the gallery index over it.
//
// The index is built from disk once in Open and afterwards only changed by
// Save. All methods are safe for concurrent use.
type Store struct {
	root string
	opts Options

	mu      sync.Mutex
	gallery []Record
}

// Open creates root if needed and rebuilds the gallery from its subdirectories.
//
// Only directories holding a composite ("*_results.jpg") are listed; they are
// ordered by name, newest first.
//
// Arguments:
//   - root: The storage directory.
//   - opts: Store options; zero fields take DefaultOptions values.
//
// Returns:
//   - *Store: The store.
//   - error: An error if root cannot be created or listed.
func Open(root string, opts Options) (*Store, error) {
	opts = withDefaults(opts)

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", root)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating storage directory %s", abs)
	}

	gallery, err := scan(abs)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("gallery index rebuilt", "root", abs, "records", len(gallery))

	return &Store{root: abs, opts: opts, gallery: gallery}, nil
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Quality <= 0 {
		opts.Quality = def.Quality
	}
	if opts.OriginalQuality <= 0 {
		opts.OriginalQuality = def.OriginalQuality
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	if opts.Environment == nil {
		opts.Environment = def.Environment
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	return opts
}

func scan(root string) ([]Record, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", root)
	}

	gallery := []Record{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if rec, ok := recordFromDir(filepath.Join(root, e.Name())); ok {
			gallery = append(gallery, rec)
		}
	}

	slices.SortFunc(gallery, func(a, b Record) int {
		return strings.Compare(b.Timestamp, a.Timestamp)
	})
	return gallery, nil
}

// recordFromDir rebuilds a record from the files present in dir.
func recordFromDir(dir string) (Record, bool) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return Record{}, false
	}

	stamp := filepath.Base(dir)
	rec := Record{Dir: dir, Timestamp: stamp, Artifacts: map[Artifact]string{}}
	hasComposite := false
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		if strings.HasSuffix(name, string(ArtifactComposite)) {
			hasComposite = true
		}
		for _, a := range allArtifacts {
			if name == stamp+string(a) {
				rec.Artifacts[a] = filepath.Join(dir, name)
			}
		}
	}
	if !hasComposite {
		return Record{}, false
	}
	if _, ok := rec.Artifacts[ArtifactComposite]; !ok {
		for _, f := range files {
			if strings.HasSuffix(f.Name(), string(ArtifactComposite)) {
				rec.Artifacts[ArtifactComposite] = filepath.Join(dir, f.Name())
				break
			}
		}
	}
	return rec, true
}

// Root returns the absolute storage directory.
func (s *Store) Root() string {
	return s.root
}

// Save writes one run into a new directory and prepends it to the gallery.
//
// The directory is named by the current millisecond timestamp. If that name
// is taken (two saves in the same millisecond), "_1", "_2", ... is appended
// so no earlier result is overwritten. On any write failure the directory is
// removed and the gallery is left unchanged.
//
// Arguments:
//   - a: The images and batches of one run.
//
// Returns:
//   - Record: The new record.
//   - error: An error if the directory or any artifact cannot be written.
func (s *Store) Save(a Artifacts) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, stamp, err := s.makeResultDirectory()
	if err != nil {
		return Record{}, err
	}

	rec := Record{Dir: dir, Timestamp: stamp, Artifacts: map[Artifact]string{}}
	if err := s.writeArtifacts(&rec, a); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.opts.Logger.Warn("failed to remove partial result", "dir", dir, "error", rmErr)
		}
		return Record{}, err
	}

	s.gallery = slices.Insert(s.gallery, 0, rec)
	s.opts.Logger.Info("result saved", "dir", dir, "artifacts", len(rec.Artifacts))
	return rec, nil
}

func (s *Store) makeResultDirectory() (string, string, error) {
	now := s.opts.Now()
	base := now.Format(TimestampLayout) + fmt.Sprintf("-%03d", now.Nanosecond()/int(time.Millisecond))

	stamp := base
	for n := 1; ; n++ {
		dir := filepath.Join(s.root, stamp)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, stamp, nil
		}
		if !os.IsExist(err) {
			return "", "", errors.Wrapf(err, "creating result directory %s", dir)
		}
		stamp = fmt.Sprintf("%s_%d", base, n)
	}
}

func (s *Store) writeArtifacts(rec *Record, a Artifacts) error {
	images := []struct {
		artifact Artifact
		mat      common.Optional[gocv.Mat]
		quality  int
	}{
		{ArtifactOriginal, common.Some(a.Original), s.opts.OriginalQuality},
		{ArtifactComposite, common.Some(a.Composite), s.opts.Quality},
		{ArtifactRegion, common.Some(a.Region), s.opts.Quality},
		{ArtifactScreen, a.Screen, s.opts.Quality},
		{ArtifactDigits, a.Digits, s.opts.Quality},
	}

	for _, img := range images {
		mat, ok := img.mat.Get()
		if !ok || mat.Empty() {
			if img.artifact == ArtifactOriginal || img.artifact == ArtifactComposite {
				return errors.Errorf("%s image is empty", strings.TrimPrefix(string(img.artifact), "_"))
			}
			continue
		}

		path := rec.fileFor(img.artifact)
		if !gocv.IMWriteWithParams(path, mat, []int{gocv.IMWriteJpegQuality, img.quality}) {
			return errors.Errorf("failed to write %s", path)
		}
		rec.Artifacts[img.artifact] = path
	}

	report := FormatReport(s.opts.Environment(), []StageReport{
		{Name: "CounterScreen", Batch: common.Some(a.RegionBatch)},
		{Name: "Digits", Batch: a.DigitsBatch},
	})
	path := rec.fileFor(ArtifactReport)
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return errors.Wrapf(err, "writing report %s", path)
	}
	rec.Artifacts[ArtifactReport] = path
	return nil
}

func (r *Record) fileFor(a Artifact) string {
	return filepath.Join(r.Dir, r.Timestamp+string(a))
}

// Gallery returns a copy of the index, newest first.
func (s *Store) Gallery() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.gallery)
}

// Latest returns the newest record, if any.
func (s *Store) Latest() common.Optional[Record] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.gallery) == 0 {
		return common.None[Record]()
	}
	return common.Some(s.gallery[0])
}

// Len returns the number of indexed records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gallery)
}
