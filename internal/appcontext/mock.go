package appcontext

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/taxamap"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/store"
)

// Mock is an Interface for command tests. Client and Store come from the
// funcs; a nil func reports a configuration error the way App does when
// the store cannot be opened. Empty strings fall back to dev build values.
//
//	mock := &appcontext.Mock{
//	    ClientFunc: func() (taxamap.Client, error) { return fake, nil },
//	    Format:     "json",
//	}
//	cmd := resolve.NewCommand(mock)
type Mock struct {
	ClientFunc func() (taxamap.Client, error)
	StoreFunc  func() (store.Store, error)

	Log    *zerolog.Logger
	Format string
	Build  BuildInfo
}

// BuildInfo is the version stamp reported by Mock.
type BuildInfo struct {
	Version, Commit, Date, BuiltBy string
}

// Client implements Interface.
func (m *Mock) Client() (taxamap.Client, error) {
	if m.ClientFunc == nil {
		return nil, errors.NewConfigError("appcontext", "mock has no client", nil)
	}
	return m.ClientFunc()
}

// Store implements Interface.
func (m *Mock) Store() (store.Store, error) {
	if m.StoreFunc == nil {
		return nil, errors.NewConfigError("appcontext", "mock has no store", nil)
	}
	return m.StoreFunc()
}

// Logger implements Interface; it discards unless Log is set.
func (m *Mock) Logger() *zerolog.Logger {
	if m.Log != nil {
		return m.Log
	}
	nop := zerolog.Nop()
	return &nop
}

// OutputFormat implements Interface.
func (m *Mock) OutputFormat() string { return m.Format }

// Version implements Interface.
func (m *Mock) Version() string { return or(m.Build.Version, "dev") }

// Commit implements Interface.
func (m *Mock) Commit() string { return or(m.Build.Commit, "unknown") }

// Date implements Interface.
func (m *Mock) Date() string { return or(m.Build.Date, "unknown") }

// BuiltBy implements Interface.
func (m *Mock) BuiltBy() string { return or(m.Build.BuiltBy, "test") }

func or(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

var _ Interface = (*Mock)(nil)
