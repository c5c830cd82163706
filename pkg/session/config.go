package session

import (
	"context"
	"path/filepath"

	"github.com/jellydator/ttlcache/v3"
	"github.com/roffe/elevtrace/pkg/auxtable"
	"github.com/roffe/elevtrace/pkg/eventbus"
	"github.com/sirupsen/logrus"
)

func (s *Session) LoadBuiltinConfig() error {
	return s.loadConfig(auxtable.BuiltinName, auxtable.Builtin)
}

func (s *Session) LoadConfigFile(path string) error {
	return s.loadConfig(filepath.Base(path), func() (*auxtable.Index, error) {
		return auxtable.LoadFile(path)
	})
}

func (s *Session) LoadConfigBytes(name string, data []byte) error {
	return s.loadConfig(name, func() (*auxtable.Index, error) {
		return auxtable.LoadBytes(name, data)
	})
}

func (s *Session) LoadConfigURL(ctx context.Context, url string) error {
	return s.loadConfig(url, func() (*auxtable.Index, error) {
		opts := s.fetch
		if opts != nil && opts.Logger == nil {
			o := *opts
			o.Logger = s.log
			opts = &o
		}
		return auxtable.Fetch(ctx, url, opts)
	})
}

func (s *Session) loadConfig(name string, load func() (*auxtable.Index, error)) error {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	idx, err := load()
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.log.WithError(err).WithField("config", name).Warn("config load failed")
		return err
	}
	s.SetConfig(name, idx)
	return nil
}

// SetConfig replaces the config index and drops every memoised description.
func (s *Session) SetConfig(name string, idx *auxtable.Index) {
	s.mu.Lock()
	s.idx = idx
	s.idxName = name
	s.gen++
	s.mu.Unlock()
	s.descs.DeleteAll()

	n := 0
	if idx != nil {
		n = idx.Len()
	}
	s.publish(eventbus.TopicConfigItems, float64(n))
	s.log.WithFields(logrus.Fields{"config": name, "items": n}).Info("config loaded")
}

func (s *Session) Config() (*auxtable.Index, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx, s.idxName
}

// Describe resolves a signal description against the current config. See
// auxtable.Resolve for the matching rules.
func (s *Session) Describe(name string, order int, tableCode string) string {
	s.mu.RLock()
	idx, gen := s.idx, s.gen
	s.mu.RUnlock()
	if idx == nil || name == "" {
		return auxtable.Unknown
	}
	if order < 0 {
		order = auxtable.NoOrder
	}

	loader := ttlcache.LoaderFunc[descKey, string](
		func(c *ttlcache.Cache[descKey, string], k descKey) *ttlcache.Item[descKey, string] {
			return c.Set(k, auxtable.Resolve(idx, k.name, k.order, k.table), ttlcache.DefaultTTL)
		},
	)
	key := descKey{gen: gen, name: name, order: order, table: tableCode}
	item := s.descs.Get(key, ttlcache.WithLoader[descKey, string](loader))
	if item == nil {
		return auxtable.Resolve(idx, name, order, tableCode)
	}
	return item.Value()
}
