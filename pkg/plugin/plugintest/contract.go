// Package plugintest provides contract tests every ia-backend module must
// pass. Call TestPluginContract from each module's _test.go.
package plugintest

import (
	"context"
	"testing"

	"github.com/rpenyav/ia-backend/pkg/plugin"
)

// DepsFunc builds fresh dependencies for one subtest.
type DepsFunc func(t *testing.T) plugin.Dependencies

// TestPluginContract runs lifecycle contract checks against a module:
//
//	func TestContract(t *testing.T) {
//	    plugintest.TestPluginContract(t, func() plugin.Plugin { return usage.New() }, testDeps)
//	}
func TestPluginContract(t *testing.T, factory func() plugin.Plugin, deps DepsFunc) {
	t.Helper()

	t.Run("Info_returns_valid_metadata", func(t *testing.T) {
		info := factory().Info()
		if info.Name == "" {
			t.Error("Info().Name must not be empty")
		}
		if info.Version == "" {
			t.Error("Info().Version must not be empty")
		}
		if info.APIVersion < plugin.APIVersionMin || info.APIVersion > plugin.APIVersionCurrent {
			t.Errorf("Info().APIVersion = %d, outside [%d, %d]", info.APIVersion, plugin.APIVersionMin, plugin.APIVersionCurrent)
		}
	})

	t.Run("Init_Start_Stop", func(t *testing.T) {
		p := factory()
		if err := p.Init(context.Background(), deps(t)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if err := p.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := p.Stop(context.Background()); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	})

	t.Run("Stop_without_Start", func(t *testing.T) {
		p := factory()
		if err := p.Init(context.Background(), deps(t)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if err := p.Stop(context.Background()); err != nil {
			t.Fatalf("Stop() without Start error = %v", err)
		}
	})

	t.Run("Routes_are_well_formed", func(t *testing.T) {
		p := factory()
		if err := p.Init(context.Background(), deps(t)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		hp, ok := p.(plugin.HTTPProvider)
		if !ok {
			t.Skip("module exposes no routes")
		}
		for _, r := range hp.Routes() {
			if r.Method == "" || r.Handler == nil {
				t.Errorf("route %q: method and handler are required", r.Path)
			}
			if r.Path == "" || r.Path[0] != '/' {
				t.Errorf("route path %q must start with /", r.Path)
			}
		}
	})
}
