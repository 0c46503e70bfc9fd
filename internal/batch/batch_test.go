package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gazette-cli/internal/cache"
	"github.com/sells-group/gazette-cli/internal/extract"
	"github.com/sells-group/gazette-cli/internal/matcher"
	"github.com/sells-group/gazette-cli/internal/model"
	"github.com/sells-group/gazette-cli/internal/monitoring"
	"github.com/sells-group/gazette-cli/internal/scorer"
)

const noticeText = "Intimação. Advogado: OAB/SP 123.456 requer vista dos autos."

var target = []model.Identity{{Number: "123456", Jurisdiction: "SP"}}

// fakeExtractor returns texts by file name. Names listed in fail produce an
// extraction failure and names in panics panic.
type fakeExtractor struct {
	texts  map[string]string
	fail   map[string]bool
	panics map[string]bool
	hook   func(doc model.SourceDocument)
	calls  atomic.Int32
}

func (f *fakeExtractor) Extract(_ context.Context, doc model.SourceDocument) extract.Result {
	f.calls.Add(1)
	if f.hook != nil {
		f.hook(doc)
	}
	name := filepath.Base(doc.Path)
	if f.panics[name] {
		panic("corrupt xref table")
	}
	if f.fail[name] {
		return extract.Result{Strategy: extract.StrategyFailed, Err: errors.New("extract: invalid PDF header")}
	}
	text, ok := f.texts[name]
	if !ok {
		text = noticeText
	}
	return extract.Result{
		Text:      text,
		Strategy:  extract.StrategyPdfToText,
		PageCount: 2,
		CharCount: len([]rune(text)),
		Success:   true,
		Elapsed:   time.Millisecond,
	}
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]cache.Entry
	saves   int
}

func newMemCache() *memCache { return &memCache{entries: map[string]cache.Entry{}} }

func (m *memCache) Get(_ context.Context, doc model.SourceDocument) (*cache.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[doc.Path]
	if !ok {
		return nil, false
	}
	return &e, true
}

func (m *memCache) Save(_ context.Context, doc model.SourceDocument, text, strategy string, pageCount int, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.entries[doc.Path] = cache.Entry{Path: doc.Path, Text: text, Strategy: strategy, PageCount: pageCount, CharCount: len([]rune(text))}
	return nil
}

func newTestPipeline(ex Extractor, tc TextCache, metrics *monitoring.Metrics) *Pipeline {
	return NewPipeline(ex, tc, matcher.New(), scorer.New(scorer.DefaultConfig()), metrics)
}

func factoryFor(ex Extractor, tc TextCache) PipelineFactory {
	return func() (*Pipeline, error) { return newTestPipeline(ex, tc, nil), nil }
}

func docs(names ...string) []model.SourceDocument {
	out := make([]model.SourceDocument, len(names))
	for i, n := range names {
		out[i] = model.SourceDocument{Path: "/gazettes/" + n}
	}
	return out
}

func paths(outcomes []model.ProcessingOutcome) []string {
	out := make([]string, len(outcomes))
	for i, o := range outcomes {
		out[i] = filepath.Base(o.DocumentPath)
	}
	return out
}

func TestPipeline_MissThenHit(t *testing.T) {
	ex := &fakeExtractor{}
	mc := newMemCache()
	p := newTestPipeline(ex, mc, nil)
	doc := docs("TJSP_2025-11-13_D.pdf")[0]

	pubs, out := p.Process(context.Background(), doc, target, 0.3)
	require.True(t, out.Success, out.Error)
	assert.False(t, out.CacheHit)
	assert.Equal(t, extract.StrategyPdfToText, out.Strategy)
	require.Len(t, pubs, 1)
	assert.Equal(t, 1, mc.saves)

	pub := pubs[0]
	assert.Equal(t, "TJSP", pub.Tribunal)
	assert.Equal(t, "D", pub.Edition)
	assert.Equal(t, time.Date(2025, 11, 13, 0, 0, 0, 0, time.UTC), pub.PublishedOn)
	assert.Equal(t, "123456", pub.Number)
	assert.Equal(t, "SP", pub.Jurisdiction)
	assert.Equal(t, 1, pub.MentionCount)
	assert.Equal(t, model.ActNotice, pub.ActType)
	assert.Equal(t, 2, pub.PageCount)
	assert.GreaterOrEqual(t, pub.FinalScore, 0.3)
	assert.LessOrEqual(t, pub.FinalScore, 1.0)
	assert.LessOrEqual(t, pub.Position, strings.Index(noticeText, "OAB"))

	_, out = p.Process(context.Background(), doc, target, 0.3)
	assert.True(t, out.CacheHit)
	assert.Equal(t, int32(1), ex.calls.Load())
}

func TestPipeline_NoCache(t *testing.T) {
	ex := &fakeExtractor{}
	p := newTestPipeline(ex, nil, nil)
	doc := docs("a.pdf")[0]

	for range 2 {
		_, out := p.Process(context.Background(), doc, target, 0.3)
		require.True(t, out.Success)
		assert.False(t, out.CacheHit)
	}
	assert.Equal(t, int32(2), ex.calls.Load())
}

func TestPipeline_ExtractionFailure(t *testing.T) {
	ex := &fakeExtractor{fail: map[string]bool{"bad.pdf": true}}
	mc := newMemCache()
	pubs, out := newTestPipeline(ex, mc, nil).Process(context.Background(), docs("bad.pdf")[0], target, 0.3)

	assert.Nil(t, pubs)
	assert.False(t, out.Success)
	assert.Equal(t, extract.StrategyFailed, out.Strategy)
	assert.Contains(t, out.Error, "invalid PDF header")
	assert.Zero(t, mc.saves)
}

func TestPipeline_OtherIdentitiesIgnored(t *testing.T) {
	ex := &fakeExtractor{texts: map[string]string{"a.pdf": "Intimação. Advogado: OAB/RJ 98.765."}}
	pubs, out := newTestPipeline(ex, nil, nil).Process(context.Background(), docs("a.pdf")[0], target, 0.3)
	assert.True(t, out.Success)
	assert.Empty(t, pubs)
	assert.Zero(t, out.MatchCount)
}

func TestPipeline_NoTargetsScoresEveryIdentity(t *testing.T) {
	text := "Intimação. Advogado: OAB/SP 123.456. Advogada: OAB/RJ 98.765."
	ex := &fakeExtractor{texts: map[string]string{"a.pdf": text}}
	pubs, out := newTestPipeline(ex, nil, nil).Process(context.Background(), docs("a.pdf")[0], nil, 0.3)
	require.True(t, out.Success)
	assert.Len(t, pubs, 2)
	assert.Equal(t, 2, out.MatchCount)
}

func TestPipeline_OCRNeedsReview(t *testing.T) {
	ex := &ocrExtractor{}
	pubs, _ := newTestPipeline(ex, nil, nil).Process(context.Background(), docs("scan.pdf")[0], target, 0.3)
	require.Len(t, pubs, 1)
	assert.True(t, pubs[0].NeedsManualReview)
	assert.Equal(t, extract.StrategyOCR, pubs[0].ExtractionStrategy)
}

type ocrExtractor struct{}

func (ocrExtractor) Extract(context.Context, model.SourceDocument) extract.Result {
	return extract.Result{Text: noticeText, Strategy: extract.StrategyOCR, Success: true}
}

func TestCoordinator_IsolatesFailures(t *testing.T) {
	ex := &fakeExtractor{
		fail:   map[string]bool{"3.pdf": true},
		panics: map[string]bool{"5.pdf": true},
	}
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	c := New(func() (*Pipeline, error) { return newTestPipeline(ex, nil, metrics), nil }, Options{Workers: 3, Metrics: metrics})

	pubs, outcomes, err := c.Process(context.Background(), docs("1.pdf", "2.pdf", "3.pdf", "4.pdf", "5.pdf"), target, 0.3)
	require.NoError(t, err)
	require.Len(t, outcomes, 5)
	assert.Equal(t, []string{"1.pdf", "2.pdf", "3.pdf", "4.pdf", "5.pdf"}, paths(outcomes))

	for i, o := range outcomes {
		switch i {
		case 2:
			assert.False(t, o.Success)
			assert.Contains(t, o.Error, "invalid PDF header")
		case 4:
			assert.False(t, o.Success)
			assert.Contains(t, o.Error, "pipeline panic")
		default:
			assert.True(t, o.Success, o.DocumentPath)
			assert.Equal(t, 1, o.MatchCount)
		}
	}
	assert.Len(t, pubs, 3)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.DocumentsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DocumentsTotal.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.InFlight))
}

func TestCoordinator_SortsByFinalScore(t *testing.T) {
	ex := &fakeExtractor{texts: map[string]string{
		"weak.pdf":   strings.Repeat("texto sem relação com o caso. ", 200) + "processo 123.456/SP",
		"strong.pdf": noticeText,
	}}
	c := New(factoryFor(ex, nil), Options{Workers: 2})

	pubs, _, err := c.Process(context.Background(), docs("weak.pdf", "strong.pdf"), target, 0)
	require.NoError(t, err)
	require.NotEmpty(t, pubs)
	assert.Equal(t, "strong.pdf", filepath.Base(pubs[0].DocumentPath))
	for i := 1; i < len(pubs); i++ {
		assert.GreaterOrEqual(t, pubs[i-1].FinalScore, pubs[i].FinalScore)
	}
}

func TestCoordinator_FactoryErrorAbortsBeforeWork(t *testing.T) {
	ex := &fakeExtractor{}
	c := New(func() (*Pipeline, error) { return nil, extract.ErrNoBackendAvailable }, Options{Workers: 2})

	_, _, err := c.Process(context.Background(), docs("a.pdf", "b.pdf"), target, 0.3)
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrNoBackendAvailable)
	assert.Zero(t, ex.calls.Load())
}

func TestCoordinator_CancelledBeforeStart(t *testing.T) {
	ex := &fakeExtractor{}
	c := New(factoryFor(ex, nil), Options{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pubs, outcomes, err := c.Process(ctx, docs("a.pdf", "b.pdf", "c.pdf"), target, 0.3)
	require.NoError(t, err)
	assert.Empty(t, pubs)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.False(t, o.Success)
		assert.Equal(t, CancelledError, o.Error)
	}
	assert.Zero(t, ex.calls.Load())
}

func TestCoordinator_CancelMidRunFinishesInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := &fakeExtractor{}
	ex.hook = func(doc model.SourceDocument) {
		if filepath.Base(doc.Path) == "1.pdf" {
			cancel()
		}
	}
	c := New(factoryFor(ex, nil), Options{Workers: 1})

	_, outcomes, err := c.Process(ctx, docs("1.pdf", "2.pdf", "3.pdf"), target, 0.3)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Success, "in-flight document completes")
	assert.Equal(t, CancelledError, outcomes[1].Error)
	assert.Equal(t, CancelledError, outcomes[2].Error)
	assert.Equal(t, int32(1), ex.calls.Load())
}

func TestCoordinator_DeduplicatesPaths(t *testing.T) {
	ex := &fakeExtractor{}
	c := New(factoryFor(ex, nil), Options{Workers: 2})

	_, outcomes, err := c.Process(context.Background(), docs("a.pdf", "b.pdf", "a.pdf"), target, 0.3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, paths(outcomes))
	assert.Equal(t, int32(2), ex.calls.Load())
}

func TestCoordinator_Progress(t *testing.T) {
	var (
		mu    sync.Mutex
		dones []int
	)
	c := New(factoryFor(&fakeExtractor{}, nil), Options{
		Workers: 3,
		Progress: func(done, total int, _ model.ProcessingOutcome) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 4, total)
			dones = append(dones, done)
		},
	})

	_, _, err := c.Process(context.Background(), docs("a.pdf", "b.pdf", "c.pdf", "d.pdf"), target, 0.3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, dones)
}

func TestCoordinator_EmptyBatch(t *testing.T) {
	built := 0
	c := New(func() (*Pipeline, error) { built++; return nil, nil }, Options{Workers: 2})
	pubs, outcomes, err := c.Process(context.Background(), nil, target, 0.3)
	require.NoError(t, err)
	assert.Empty(t, pubs)
	assert.Empty(t, outcomes)
	assert.Zero(t, built)
}

func TestCoordinator_PipelinePerWorker(t *testing.T) {
	var built atomic.Int32
	ex := &fakeExtractor{}
	c := New(func() (*Pipeline, error) {
		built.Add(1)
		return newTestPipeline(ex, nil, nil), nil
	}, Options{Workers: 3})

	_, _, err := c.Process(context.Background(), docs("1.pdf", "2.pdf", "3.pdf", "4.pdf", "5.pdf", "6.pdf"), target, 0.3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), built.Load())

	_, _, err = c.Process(context.Background(), docs("x.pdf"), target, 0.3)
	require.NoError(t, err)
	assert.Equal(t, int32(4), built.Load(), "pool never exceeds the document count")
}

func TestProcessChunked(t *testing.T) {
	ex := &fakeExtractor{fail: map[string]bool{"4.pdf": true}}
	var last atomic.Int32
	c := New(factoryFor(ex, nil), Options{
		Workers: 2,
		Progress: func(done, total int, _ model.ProcessingOutcome) {
			assert.Equal(t, 5, total)
			last.Store(int32(done))
		},
	})

	pubs, outcomes, err := c.ProcessChunked(context.Background(), docs("1.pdf", "2.pdf", "3.pdf", "4.pdf", "5.pdf"), target, 0.3, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.pdf", "2.pdf", "3.pdf", "4.pdf", "5.pdf"}, paths(outcomes))
	assert.False(t, outcomes[3].Success)
	assert.Len(t, pubs, 4)
	assert.Equal(t, int32(5), last.Load())
}

func TestProcessChunked_DefaultChunkSize(t *testing.T) {
	var names []string
	for i := range 25 {
		names = append(names, fmt.Sprintf("%02d.pdf", i))
	}
	c := New(factoryFor(&fakeExtractor{}, nil), Options{Workers: 4})

	_, outcomes, err := c.ProcessChunked(context.Background(), docs(names...), target, 0.3, 0)
	require.NoError(t, err)
	assert.Len(t, outcomes, 25)
}

func TestEffectiveChunkSize(t *testing.T) {
	c := New(factoryFor(&fakeExtractor{}, nil), Options{Workers: 8})
	assert.Equal(t, DefaultChunkSize, c.effectiveChunkSize(0))
	assert.Equal(t, 8, c.effectiveChunkSize(3), "chunks never starve the pool")
	assert.Equal(t, 50, c.effectiveChunkSize(50))

	c = New(factoryFor(&fakeExtractor{}, nil), Options{Workers: 16, ChunkSize: 4})
	assert.Equal(t, 16, c.effectiveChunkSize(0))
}

func TestProcessChunked_SmallChunksUseWholePool(t *testing.T) {
	const workers = 4
	var (
		inflight, peak atomic.Int32
		once           sync.Once
	)
	full := make(chan struct{})
	ex := &fakeExtractor{hook: func(model.SourceDocument) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if n == workers {
			once.Do(func() { close(full) })
		}
		select {
		case <-full:
		case <-time.After(time.Second):
		}
	}}
	c := New(factoryFor(ex, nil), Options{Workers: workers})

	_, outcomes, err := c.ProcessChunked(context.Background(), docs("1.pdf", "2.pdf", "3.pdf", "4.pdf"), target, 0.3, 1)
	require.NoError(t, err)
	assert.Len(t, outcomes, 4)
	assert.Equal(t, int32(workers), peak.Load())
}

func TestStats(t *testing.T) {
	outcomes := []model.ProcessingOutcome{
		{DocumentPath: "a.pdf", Success: true, MatchCount: 3, Elapsed: 2 * time.Second, CacheHit: true},
		{DocumentPath: "b.pdf", Success: true, MatchCount: 1, Elapsed: time.Second},
		{DocumentPath: "c.pdf", Success: false, Error: "extract: all strategies failed", Elapsed: time.Second},
		{DocumentPath: "d.pdf", Success: false, Error: CancelledError},
	}
	s := Stats(outcomes)

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 2, s.Failed)
	assert.InDelta(t, 0.5, s.SuccessRate, 1e-9)
	assert.Equal(t, 4, s.TotalMatches)
	assert.InDelta(t, 2.0, s.AvgMatchesPerDoc, 1e-9)
	assert.Equal(t, 1, s.CacheHits)
	assert.Equal(t, 4*time.Second, s.TotalElapsed)
	assert.Equal(t, time.Second, s.AvgElapsed)
	assert.InDelta(t, 1.0, s.ThroughputPerSecond, 1e-9)
	require.Len(t, s.Errors, 2)
	assert.Equal(t, model.DocumentError{DocumentPath: "c.pdf", Error: "extract: all strategies failed"}, s.Errors[0])
}

func TestStats_Empty(t *testing.T) {
	assert.Equal(t, model.BatchStats{}, Stats(nil))
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 1, workersFor(1))
	assert.Equal(t, 1, workersFor(2))
	assert.Equal(t, 3, workersFor(4))
	assert.Equal(t, 12, workersFor(16))
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)

	assert.Equal(t, 7, New(nil, Options{Workers: 7}).Workers())
	assert.Equal(t, DefaultWorkers(), New(nil, Options{}).Workers())
}
