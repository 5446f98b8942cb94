package index_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/marco/videomap/internal/cache"
	"github.com/marco/videomap/internal/index"
	"github.com/marco/videomap/internal/metrics"
	"github.com/marco/videomap/internal/probe"
	"github.com/marco/videomap/internal/video"
)

type countingObserver struct {
	mu        sync.Mutex
	started   []string
	files     int
	persisted []string
}

func (o *countingObserver) DirectoryStarted(path string, files int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, path)
}

func (o *countingObserver) FileDone(path string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files++
}

func (o *countingObserver) DirectoryPersisted(path string, records int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.persisted = append(o.persisted, path)
}

var _ = Describe("Manager", func() {
	var (
		root    string
		dbPath  string
		store   *cache.SQLiteStore
		prober  *fakeProber
		stats   *metrics.Metrics
		ctx     context.Context
		fooDir  string
		barDir  string
		options func() index.Options
		run     func(opts index.Options) (index.Summary, *index.Manager, error)
	)

	BeforeEach(func() {
		ctx = context.Background()

		tmp := GinkgoT().TempDir()
		var err error
		root, err = filepath.EvalSymlinks(tmp)
		Expect(err).NotTo(HaveOccurred())

		fooDir = filepath.Join(root, "foo")
		barDir = filepath.Join(root, "bar")

		// foo: six videos plus two files that must be ignored.
		writeSized(filepath.Join(fooDir, "s01e01.mkv"), 101)
		writeSized(filepath.Join(fooDir, "s01e02.mkv"), 102)
		writeSized(filepath.Join(fooDir, "s01e03.mp4"), 103)
		writeSized(filepath.Join(fooDir, "s01e04.avi"), 104)
		writeSized(filepath.Join(fooDir, "s01e05.MKV"), 105)
		writeSized(filepath.Join(fooDir, "s01e06.m4v"), 106)
		writeSized(filepath.Join(fooDir, "notes.txt"), 10)
		writeSized(filepath.Join(fooDir, "cover.jpg"), 10)

		// bar: six more videos.
		for i, name := range []string{"a.mkv", "b.mkv", "c.mov", "d.ts", "e.wmv", "f.mpg"} {
			writeSized(filepath.Join(barDir, name), 200+i)
		}

		prober = newFakeProber()
		prober.results["s01e01.mkv"] = track(1920, 1080, "HEVC")
		prober.results["s01e02.mkv"] = track(1280, 720, "AVC")
		prober.results["s01e03.mp4"] = track(3840, 2160, "HEVC")
		prober.results["s01e04.avi"] = track(720, 480, "MPEG-4 Visual")
		prober.results["s01e05.MKV"] = track(1920, 800, "AV1")
		prober.results["s01e06.m4v"] = track(100000, 100000, "AVC")

		dbPath = filepath.Join(GinkgoT().TempDir(), "cache.db")
		store, err = cache.NewSQLiteStore(dbPath, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		stats = metrics.New()

		options = func() index.Options {
			return index.Options{
				Root:    root,
				Store:   store,
				Prober:  prober,
				Update:  true,
				Workers: 4,
				Metrics: stats,
			}
		}

		run = func(opts index.Options) (index.Summary, *index.Manager, error) {
			m, err := index.New(opts)
			Expect(err).NotTo(HaveOccurred())
			sum, err := m.Run(ctx)
			return sum, m, err
		}
	})

	Describe("a first scan", func() {
		It("indexes exactly the twelve fixture videos grouped by directory", func() {
			sum, m, err := run(options())
			Expect(err).NotTo(HaveOccurred())

			groups := m.Groups()
			Expect(groups).To(HaveLen(2))
			Expect(groups).To(HaveKey(fooDir))
			Expect(groups).To(HaveKey(barDir))
			Expect(groups[fooDir]).To(HaveLen(6))
			Expect(groups[barDir]).To(HaveLen(6))

			Expect(sum.Probed).To(Equal(12))
			Expect(sum.Fresh).To(BeZero())
			Expect(sum.Records).To(Equal(12))
			Expect(m.State()).To(Equal(index.StatePersisted))
			Expect(readRows(dbPath)).To(HaveLen(12))
		})

		It("classifies quality and codec from the probe data", func() {
			_, m, err := run(options())
			Expect(err).NotTo(HaveOccurred())

			byName := map[string]*video.Record{}
			for _, rec := range m.Records() {
				byName[rec.Name] = rec
			}

			expected := map[string]struct {
				quality video.Quality
				format  string
			}{
				"s01e01.mkv": {video.Quality1080p, "HEVC"},
				"s01e02.mkv": {video.Quality720p, "AVC"},
				"s01e03.mp4": {video.Quality2160p, "HEVC"},
				"s01e04.avi": {video.QualitySD, "MPEG-4 Visual"},
				"s01e05.MKV": {video.Quality1080p, "AV1"},
				"s01e06.m4v": {video.QualityUnknown, "AVC"},
				"a.mkv":      {video.Quality1080p, "HEVC"},
			}
			for name, want := range expected {
				rec := byName[name]
				Expect(rec).NotTo(BeNil(), name)
				Expect(rec.Quality).To(Equal(want.quality), name)
				Expect(rec.Codec.FormatName).To(Equal(want.format), name)
			}

			Expect(byName["s01e01.mkv"].AudioLanguages).To(Equal([]string{"eng"}))
			Expect(byName["s01e01.mkv"].SubtitleLanguages).To(Equal([]string{"fre"}))
			Expect(byName["s01e01.mkv"].SizeBytes).To(BeEquivalentTo(101))
			enc, ok := byName["s01e03.mp4"].Codec.EncoderFor(video.TargetSoftware)
			Expect(ok).To(BeTrue())
			Expect(enc).To(Equal("libx265"))
		})

		It("reports progress to the observer", func() {
			obs := &countingObserver{}
			opts := options()
			opts.Observer = obs

			_, _, err := run(opts)
			Expect(err).NotTo(HaveOccurred())

			Expect(obs.started).To(Equal([]string{root, barDir, fooDir}))
			Expect(obs.files).To(Equal(12))
			Expect(obs.persisted).To(ConsistOf(barDir, fooDir))
		})

		It("counts probes in the metrics", func() {
			_, _, err := run(options())
			Expect(err).NotTo(HaveOccurred())
			Expect(testutil.ToFloat64(stats.FilesProbed)).To(Equal(12.0))
			Expect(testutil.ToFloat64(stats.DirectoriesPersisted)).To(Equal(2.0))
		})

		It("records the run in the history", func() {
			sum, _, err := run(options())
			Expect(err).NotTo(HaveOccurred())
			Expect(sum.RunID).NotTo(BeEmpty())

			runs, err := store.Runs(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(1))
			Expect(runs[0].ID).To(Equal(sum.RunID))
			Expect(runs[0].Probed).To(Equal(12))
			Expect(runs[0].Root).To(Equal(root))
		})
	})

	Describe("a rescan", func() {
		BeforeEach(func() {
			_, _, err := run(options())
			Expect(err).NotTo(HaveOccurred())
			prober.reset()
		})

		It("probes nothing and leaves the store byte-identical when nothing changed", func() {
			before := readRows(dbPath)

			sum, m, err := run(options())
			Expect(err).NotTo(HaveOccurred())

			Expect(prober.total()).To(BeZero())
			Expect(sum.Fresh).To(Equal(12))
			Expect(sum.Persisted).To(BeZero())
			Expect(m.Records()).To(HaveLen(12))
			Expect(readRows(dbPath)).To(Equal(before))
		})

		It("re-probes only the file whose size changed", func() {
			changed := filepath.Join(fooDir, "s01e02.mkv")
			writeSized(changed, 5000)
			prober.results["s01e02.mkv"] = track(3840, 2160, "HEVC")
			before := readRows(dbPath)

			sum, m, err := run(options())
			Expect(err).NotTo(HaveOccurred())

			Expect(prober.calls).To(Equal(map[string]int{changed: 1}))
			Expect(sum.Probed).To(Equal(1))
			Expect(sum.Fresh).To(Equal(11))

			var rec *video.Record
			for _, r := range m.Records() {
				if r.FullPath() == changed {
					rec = r
				}
			}
			Expect(rec).NotTo(BeNil())
			Expect(rec.SizeBytes).To(BeEquivalentTo(5000))
			Expect(rec.Quality).To(Equal(video.Quality2160p))

			after := readRows(dbPath)
			Expect(after[changed].Size).To(BeEquivalentTo(5000))
			Expect(after[changed].CreatedAt).To(Equal(before[changed].CreatedAt))
			untouched := filepath.Join(fooDir, "s01e01.mkv")
			Expect(after[untouched]).To(Equal(before[untouched]))
		})

		It("picks up new files without re-probing old ones", func() {
			added := filepath.Join(barDir, "g.mkv")
			writeSized(added, 300)

			sum, _, err := run(options())
			Expect(err).NotTo(HaveOccurred())
			Expect(prober.calls).To(Equal(map[string]int{added: 1}))
			Expect(sum.Records).To(Equal(13))
		})

		It("re-probes records stored under an older schema", func() {
			path := filepath.Join(barDir, "a.mkv")
			old := []byte(readRows(dbPath)[path].Payload)
			// Rewrite the stored schema version.
			old = []byte(strings.Replace(string(old), `"schema_version":2`, `"schema_version":1`, 1))
			execSQL(dbPath, "UPDATE video_cache SET payload = ? WHERE file_path = ?", old, path)

			sum, _, err := run(options())
			Expect(err).NotTo(HaveOccurred())
			Expect(prober.calls).To(Equal(map[string]int{path: 1}))
			Expect(sum.Probed).To(Equal(1))
		})

		It("only loads and prunes when updates are disabled", func() {
			Expect(os.Remove(filepath.Join(fooDir, "s01e01.mkv"))).To(Succeed())
			writeSized(filepath.Join(barDir, "new.mkv"), 1)

			opts := options()
			opts.Update = false
			sum, m, err := run(opts)
			Expect(err).NotTo(HaveOccurred())

			Expect(prober.total()).To(BeZero())
			Expect(sum.Pruned).To(Equal(1))
			Expect(m.Records()).To(HaveLen(11))
			Expect(readRows(dbPath)).To(HaveLen(11))
		})
	})

	Describe("linked directories", func() {
		symlink := func(target, link string) {
			GinkgoHelper()
			if err := os.Symlink(target, link); err != nil {
				Skip("symlinks unsupported: " + err.Error())
			}
		}

		It("keeps one record per file when an alias appears between runs", func() {
			_, _, err := run(options())
			Expect(err).NotTo(HaveOccurred())
			before := readRows(dbPath)

			symlink(fooDir, filepath.Join(root, "a-alias"))

			for i := 0; i < 2; i++ {
				prober.reset()
				sum, m, err := run(options())
				Expect(err).NotTo(HaveOccurred())

				Expect(prober.total()).To(BeZero())
				Expect(sum.Persisted).To(BeZero())
				Expect(m.Groups()).To(HaveLen(2))
				Expect(m.Groups()).To(HaveKey(fooDir))
				Expect(m.Records()).To(HaveLen(12))
			}
			Expect(readRows(dbPath)).To(Equal(before))
		})

		It("caches a directory linked from outside the root", func() {
			outside, err := filepath.EvalSymlinks(GinkgoT().TempDir())
			Expect(err).NotTo(HaveOccurred())
			writeSized(filepath.Join(outside, "x.mkv"), 50)
			writeSized(filepath.Join(outside, "y.mkv"), 51)
			symlink(outside, filepath.Join(root, "extra"))

			sum, m, err := run(options())
			Expect(err).NotTo(HaveOccurred())
			Expect(sum.Probed).To(Equal(14))
			Expect(m.Groups()).To(HaveKey(outside))
			Expect(readRows(dbPath)).To(HaveKey(filepath.Join(outside, "x.mkv")))

			prober.reset()
			sum, m, err = run(options())
			Expect(err).NotTo(HaveOccurred())
			Expect(prober.total()).To(BeZero())
			Expect(sum.Fresh).To(Equal(14))
			Expect(m.Records()).To(HaveLen(14))

			Expect(os.Remove(filepath.Join(outside, "y.mkv"))).To(Succeed())
			sum, m, err = run(options())
			Expect(err).NotTo(HaveOccurred())
			Expect(prober.total()).To(BeZero())
			Expect(sum.Pruned).To(Equal(1))
			Expect(m.Groups()[outside]).To(HaveLen(1))
			Expect(readRows(dbPath)).NotTo(HaveKey(filepath.Join(outside, "y.mkv")))
			Expect(readRows(dbPath)).To(HaveLen(13))
		})
	})

	Describe("Prune", func() {
		BeforeEach(func() {
			_, _, err := run(options())
			Expect(err).NotTo(HaveOccurred())
		})

		It("drops vanished files and directories and is idempotent", func() {
			Expect(os.Remove(filepath.Join(fooDir, "s01e03.mp4"))).To(Succeed())
			Expect(os.RemoveAll(barDir)).To(Succeed())

			m, err := index.New(options())
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Load(ctx)).To(Succeed())

			removed, err := m.Prune(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(HaveLen(7))
			Expect(removed).To(ContainElement(filepath.Join(fooDir, "s01e03.mp4")))
			Expect(removed).To(ContainElement(filepath.Join(barDir, "a.mkv")))

			first := m.Groups()
			Expect(first).To(HaveLen(1))
			Expect(first[fooDir]).To(HaveLen(5))

			again, err := m.Prune(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(BeEmpty())
			Expect(m.Groups()).To(Equal(first))

			Expect(readRows(dbPath)).To(HaveLen(5))
		})

		It("requires a load first", func() {
			m, err := index.New(options())
			Expect(err).NotTo(HaveOccurred())
			_, err = m.Prune(ctx)
			Expect(err).To(MatchError(index.ErrNotLoaded))
			_, err = m.ScanAndRefresh(ctx)
			Expect(err).To(MatchError(index.ErrNotLoaded))
		})

		It("refuses a missing root and prunes nothing", func() {
			opts := options()
			opts.Root = filepath.Join(root, "gone")
			_, _, err := run(opts)
			Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
			Expect(readRows(dbPath)).To(HaveLen(12))
		})
	})

	Describe("a single-file root", func() {
		It("yields exactly one record for that file", func() {
			opts := options()
			opts.Root = filepath.Join(fooDir, "s01e02.mkv")

			sum, m, err := run(opts)
			Expect(err).NotTo(HaveOccurred())

			recs := m.Records()
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].FullPath()).To(Equal(opts.Root))
			Expect(recs[0].Quality).To(Equal(video.Quality720p))
			Expect(sum.Probed).To(Equal(1))
			Expect(readRows(dbPath)).To(HaveLen(1))
		})

		It("does not load siblings from a previous directory scan", func() {
			_, _, err := run(options())
			Expect(err).NotTo(HaveOccurred())
			prober.reset()

			opts := options()
			opts.Root = filepath.Join(fooDir, "s01e02.mkv")
			_, m, err := run(opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Records()).To(HaveLen(1))
			Expect(prober.total()).To(BeZero())
			Expect(readRows(dbPath)).To(HaveLen(12))
		})
	})

	Describe("failure policies", func() {
		var failing string

		BeforeEach(func() {
			failing = filepath.Join(barDir, "b.mkv")
			prober.failures["b.mkv"] = errNoTrack
		})

		It("skips only the failed file by default", func() {
			sum, m, err := run(options())
			Expect(err).NotTo(HaveOccurred())

			Expect(sum.Failed).To(Equal(1))
			Expect(sum.Failures).To(HaveLen(1))
			Expect(sum.Failures[0].Path).To(Equal(failing))
			var probeErr *video.ProbeError
			Expect(errors.As(sum.Failures[0], &probeErr)).To(BeTrue())

			Expect(m.Records()).To(HaveLen(11))
			rows := readRows(dbPath)
			Expect(rows).To(HaveLen(11))
			Expect(rows).NotTo(HaveKey(failing))
			Expect(testutil.ToFloat64(stats.FilesFailed.WithLabelValues(metrics.ReasonProbe))).To(Equal(1.0))
		})

		It("retries the failed file on the next run", func() {
			_, _, err := run(options())
			Expect(err).NotTo(HaveOccurred())
			prober.reset()
			delete(prober.failures, "b.mkv")

			sum, _, err := run(options())
			Expect(err).NotTo(HaveOccurred())
			Expect(prober.calls).To(Equal(map[string]int{failing: 1}))
			Expect(sum.Records).To(Equal(12))
		})

		It("drops a stale record whose refresh fails", func() {
			_, _, err := run(options())
			Expect(err).NotTo(HaveOccurred())

			other := filepath.Join(fooDir, "s01e01.mkv")
			writeSized(other, 999)
			prober.failures["s01e01.mkv"] = errors.New("corrupt header")

			_, m, err := run(options())
			Expect(err).NotTo(HaveOccurred())
			Expect(readRows(dbPath)).NotTo(HaveKey(other))
			for _, r := range m.Records() {
				Expect(r.FullPath()).NotTo(Equal(other))
			}
		})

		It("discards the failing directory under skip-directory", func() {
			opts := options()
			opts.Failure = index.SkipDirectory

			sum, m, err := run(opts)
			Expect(err).NotTo(HaveOccurred())

			Expect(sum.Failed).To(BeNumerically(">=", 1))
			groups := m.Groups()
			Expect(groups).NotTo(HaveKey(barDir))
			Expect(groups[fooDir]).To(HaveLen(6))

			rows := readRows(dbPath)
			Expect(rows).To(HaveLen(6))
			for path := range rows {
				Expect(filepath.Dir(path)).To(Equal(fooDir))
			}
		})

		It("persists completed work and stops under abort", func() {
			opts := options()
			opts.Failure = index.Abort
			opts.Workers = 1

			sum, m, err := run(opts)

			var fileErr *index.FileError
			Expect(errors.As(err, &fileErr)).To(BeTrue())
			Expect(fileErr.Path).To(Equal(failing))

			// bar is walked before foo; a.mkv finished before b.mkv failed.
			rows := readRows(dbPath)
			Expect(rows).To(HaveLen(1))
			Expect(rows).To(HaveKey(filepath.Join(barDir, "a.mkv")))
			Expect(m.Groups()).NotTo(HaveKey(fooDir))
			Expect(sum.Failed).To(Equal(1))
			Expect(prober.calls).NotTo(HaveKey(filepath.Join(fooDir, "s01e01.mkv")))
		})
	})

	Describe("Run", func() {
		It("rejects a concurrent run on the same manager", func() {
			prober.block = make(chan struct{})
			prober.entered = make(chan struct{}, 1)
			m, err := index.New(options())
			Expect(err).NotTo(HaveOccurred())

			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, err := m.Run(ctx)
				done <- err
			}()

			Eventually(prober.entered).Should(Receive())
			_, err = m.Run(ctx)
			Expect(err).To(MatchError(index.ErrRunInProgress))

			close(prober.block)
			Eventually(done).Should(Receive(BeNil()))
		})

		It("stops after the current directory when cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			obs := &cancelObserver{cancel: cancel}
			opts := options()
			opts.Observer = obs

			m, err := index.New(opts)
			Expect(err).NotTo(HaveOccurred())
			_, err = m.Run(cctx)
			Expect(err).To(MatchError(context.Canceled))

			// bar was committed, foo never started.
			rows := readRows(dbPath)
			Expect(rows).To(HaveLen(6))
			Expect(obs.started).NotTo(ContainElement(fooDir))
		})
	})

	Describe("New", func() {
		It("validates its options", func() {
			_, err := index.New(index.Options{})
			Expect(err).To(HaveOccurred())

			_, err = index.New(index.Options{Root: root, Update: true})
			Expect(err).To(HaveOccurred())

			_, err = index.New(index.Options{Root: root, Failure: "retry"})
			var cfgErr *video.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
		})

		It("falls back to a no-op store", func() {
			m, err := index.New(index.Options{Root: root, Prober: probe.ProberFunc(prober.Probe), Update: true})
			Expect(err).NotTo(HaveOccurred())
			sum, err := m.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sum.Records).To(Equal(12))
		})
	})

	DescribeTable("ParseFailurePolicy",
		func(in string, want index.FailurePolicy, ok bool) {
			got, err := index.ParseFailurePolicy(in)
			if !ok {
				Expect(err).To(HaveOccurred())
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("default", "", index.SkipFile, true),
		Entry("skip-file", "skip-file", index.SkipFile, true),
		Entry("skip-directory", "skip-directory", index.SkipDirectory, true),
		Entry("abort", "abort", index.Abort, true),
		Entry("unknown", "ignore", index.FailurePolicy(""), false),
	)
})

// cancelObserver cancels the run once the first directory with files is persisted.
type cancelObserver struct {
	index.NopObserver
	cancel  context.CancelFunc
	started []string
}

func (o *cancelObserver) DirectoryStarted(path string, files int) {
	o.started = append(o.started, path)
}

func (o *cancelObserver) DirectoryPersisted(path string, records int) {
	o.cancel()
}
