// Package session owns the loaded trace document and signal config and is
// the single entry point the CLI and the HTTP server use.
package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/roffe/elevtrace/pkg/auxtable"
	"github.com/roffe/elevtrace/pkg/debug"
	"github.com/roffe/elevtrace/pkg/eventbus"
	"github.com/roffe/elevtrace/pkg/source"
	"github.com/roffe/elevtrace/pkg/trace"
	"github.com/roffe/elevtrace/pkg/view"
	"github.com/sirupsen/logrus"
)

var ErrNoDocument = errors.New("no trace loaded")

type Options struct {
	// Bus receives progress and config updates. May be nil.
	Bus         *eventbus.Controller
	Logger      logrus.FieldLogger
	DescribeTTL time.Duration
	Fetch       *auxtable.FetchOptions
	Now         func() time.Time
}

type Status struct {
	Loading     bool    `json:"loading"`
	Progress    float64 `json:"progress"`
	Error       string  `json:"error,omitempty"`
	FileName    string  `json:"fileName,omitempty"`
	ConfigName  string  `json:"configName,omitempty"`
	ConfigItems int     `json:"configItems"`
}

type descKey struct {
	gen   uint64
	name  string
	order int
	table string
}

type Session struct {
	// loadMu serialises trace loads, cfgMu config loads.
	loadMu sync.Mutex
	cfgMu  sync.Mutex

	mu       sync.RWMutex
	doc      *trace.Document
	idx      *auxtable.Index
	idxName  string
	gen      uint64
	loading  bool
	progress float64
	lastErr  string

	descs *ttlcache.Cache[descKey, string]
	bus   *eventbus.Controller
	log   logrus.FieldLogger
	fetch *auxtable.FetchOptions
	now   func() time.Time
}

func New(opts Options) *Session {
	ttl := opts.DescribeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	s := &Session{
		descs: ttlcache.New[descKey, string](
			ttlcache.WithTTL[descKey, string](ttl),
			ttlcache.WithDisableTouchOnHit[descKey, string](),
		),
		bus:   opts.Bus,
		log:   opts.Logger,
		fetch: opts.Fetch,
		now:   opts.Now,
	}
	if s.log == nil {
		s.log = debug.Logger
	}
	if s.now == nil {
		s.now = time.Now
	}
	go s.descs.Start()
	return s
}

func (s *Session) Close() {
	s.descs.Stop()
}

func (s *Session) publish(topic string, v float64) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(topic, v); err != nil {
		s.log.WithError(err).Debug("publish")
	}
}

// LoadTrace validates, reads and parses the trace file at path. On failure
// the previously loaded document stays in place.
func (s *Session) LoadTrace(ctx context.Context, path string) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	s.begin()
	b, err := source.ReadFile(path, source.TraceRule)
	if err != nil {
		return s.fail(err)
	}
	return s.parse(filepath.Base(path), b)
}

// LoadTraceBytes is LoadTrace for contents already in memory, such as an
// upload.
func (s *Session) LoadTraceBytes(name string, data []byte) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if err := source.Validate(name, int64(len(data)), source.TraceRule); err != nil {
		return s.failed(err)
	}
	s.begin()
	return s.parse(name, data)
}

func (s *Session) begin() {
	s.mu.Lock()
	s.loading = true
	s.progress = 0
	s.lastErr = ""
	s.mu.Unlock()
	s.publish(eventbus.TopicLoading, 1)
}

func (s *Session) parse(name string, b []byte) error {
	text, err := source.DecodeText(name, b)
	if err != nil {
		return s.fail(err)
	}

	total := 5
	if _, ok := trace.DetectDriver(text); ok {
		total++
	}
	s.publish(eventbus.TopicSectionsTotal, float64(total))

	doc, err := trace.Parse(name, int64(len(b)), text, &trace.Options{
		Progress: s.step,
		Now:      s.now,
		Logger:   s.log,
	})
	if err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	s.doc = doc
	s.loading = false
	s.progress = 100
	s.mu.Unlock()
	s.publish(eventbus.TopicLoading, 0)

	s.log.WithFields(logrus.Fields{
		"file": name,
		"size": source.FormatSize(doc.FileSize),
		"took": doc.ParseDuration,
	}).Info("trace loaded")
	return nil
}

func (s *Session) step(done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := float64(done) / float64(total) * 100; p > s.progress {
		s.progress = p
		s.publish(eventbus.TopicSectionsDone, float64(done))
	}
}

// fail ends a load that had started.
func (s *Session) fail(err error) error {
	s.publish(eventbus.TopicLoading, 0)
	return s.failed(err)
}

func (s *Session) failed(err error) error {
	s.mu.Lock()
	s.loading = false
	s.progress = 0
	s.lastErr = err.Error()
	s.mu.Unlock()
	s.publish(eventbus.TopicProgress, 0)
	s.log.WithError(err).Warn("load failed")
	return err
}

// Clear discards the document. The config is kept.
func (s *Session) Clear() {
	s.mu.Lock()
	s.doc = nil
	s.progress = 0
	s.lastErr = ""
	s.mu.Unlock()
}

func (s *Session) Document() *trace.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Section returns the records of one section of the loaded document.
func (s *Session) Section(kind trace.SectionKind) (any, error) {
	doc := s.Document()
	if doc == nil {
		return nil, ErrNoDocument
	}
	return doc.Section(kind)
}

// Views derives the presentation views of the loaded document.
func (s *Session) Views() (*view.Set, error) {
	s.mu.RLock()
	doc, idx := s.doc, s.idx
	s.mu.RUnlock()
	if doc == nil {
		return nil, ErrNoDocument
	}
	return view.Build(doc, idx), nil
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Loading:    s.loading,
		Progress:   s.progress,
		Error:      s.lastErr,
		ConfigName: s.idxName,
	}
	if s.doc != nil {
		st.FileName = s.doc.FileName
	}
	if s.idx != nil {
		st.ConfigItems = s.idx.Len()
	}
	return st
}
