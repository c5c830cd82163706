package session

import (
	"context"

	"github.com/roffe/elevtrace/pkg/auxtable"
	"github.com/roffe/elevtrace/pkg/config"
	"github.com/roffe/elevtrace/pkg/debug"
	"github.com/roffe/elevtrace/pkg/eventbus"
	"github.com/sirupsen/logrus"
)

// Open creates a session from st and loads its config. A configured URL is
// tried first; when it fails the built in config is used instead.
func Open(ctx context.Context, st *config.Settings, bus *eventbus.Controller, log logrus.FieldLogger) (*Session, error) {
	if log == nil {
		log = debug.Logger
	}
	s := New(Options{
		Bus:         bus,
		Logger:      log,
		DescribeTTL: st.DescribeCacheTTL,
		Fetch: &auxtable.FetchOptions{
			Attempts: st.FetchAttempts,
			Delay:    st.FetchDelay,
		},
	})

	if st.ConfigURL != "" {
		fctx := ctx
		if st.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(ctx, st.FetchTimeout)
			defer cancel()
		}
		err := s.LoadConfigURL(fctx, st.ConfigURL)
		if err == nil {
			return s, nil
		}
		log.WithError(err).Warn("falling back to built in config")
	}
	if err := s.LoadBuiltinConfig(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
