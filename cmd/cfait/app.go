package main

import (
	"context"
	"fmt"

	"github.com/untoldecay/cfaitgo/internal/alarmindex"
	"github.com/untoldecay/cfaitgo/internal/config"
	"github.com/untoldecay/cfaitgo/internal/controller"
	"github.com/untoldecay/cfaitgo/internal/debug"
	"github.com/untoldecay/cfaitgo/internal/journal"
	"github.com/untoldecay/cfaitgo/internal/localstore"
	"github.com/untoldecay/cfaitgo/internal/model"
	"github.com/untoldecay/cfaitgo/internal/paths"
	"github.com/untoldecay/cfaitgo/internal/remotecache"
	"github.com/untoldecay/cfaitgo/internal/syncengine"
	"github.com/untoldecay/cfaitgo/internal/taskstore"
)

// app bundles every long-lived component a command might need. It is
// built once per process by rootCmd's PersistentPreRunE and held in
// currentApp; its paths come from paths.Resolve, so CFAIT_TEST_DIR
// redirects every file it touches.
type app struct {
	paths      *paths.Paths
	cfg        config.Config
	store      *taskstore.Store
	journal    *journal.Store
	local      *localstore.Store
	registry   *localstore.Registry
	remoteCache *remotecache.Store
	alarms     *alarmindex.Store
	engine     *syncengine.Engine
	controller *controller.Controller
}

func newApp() (*app, error) {
	p, err := paths.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolving data directories: %w", err)
	}
	cfg, err := config.Load(p)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	store := taskstore.New()
	j := journal.New(p)
	local := localstore.New(p)
	registry := localstore.NewRegistry(p)
	rc := remotecache.New(p)
	alarms := alarmindex.New(p)

	var transport syncengine.Transport
	if cfg.URL != "" {
		t, terr := syncengine.NewHTTPTransport(cfg.URL, cfg.Username, cfg.Password, cfg.AllowInsecureCerts)
		if terr != nil {
			return nil, fmt.Errorf("configuring caldav transport: %w", terr)
		}
		transport = t
	}

	engine := syncengine.New(transport, j, rc, local, registry, syncengine.NoopCompanionSink{})
	engine.CreateEventsForTasks = cfg.CreateEventsForTasks
	engine.DeleteEventsOnCompletion = cfg.DeleteEventsOnCompletion

	ctl := controller.New(store, j, local, registry, engine)

	if err := loadAllCalendarsInto(store, local, rc, registry); err != nil {
		return nil, fmt.Errorf("loading local state: %w", err)
	}

	return &app{
		paths: p, cfg: cfg, store: store, journal: j, local: local,
		registry: registry, remoteCache: rc, alarms: alarms, engine: engine, controller: ctl,
	}, nil
}

// loadAllCalendarsInto populates store from every known local and remote
// calendar's last-saved snapshot (spec §4.1 "load at startup"). A corrupt
// snapshot for one calendar is logged and skipped rather than aborting
// startup entirely; its load-state gate then blocks further saves until
// the user intervenes (spec §4.4).
func loadAllCalendarsInto(store *taskstore.Store, local *localstore.Store, rc *remotecache.Store, registry *localstore.Registry) error {
	if defaultTasks, err := local.Load("default"); err != nil {
		debug.Warn("loading default local calendar: %v", err)
	} else {
		for _, t := range defaultTasks {
			store.AddTask(t)
		}
	}

	locals, err := registry.LoadLocal()
	if err != nil {
		return err
	}
	for _, c := range locals {
		id := c.Href
		if len(id) >= len(model.LocalSchemePrefix) {
			id = id[len(model.LocalSchemePrefix):]
		}
		tasks, lerr := local.Load(id)
		if lerr != nil {
			debug.Warn("loading local calendar %s: %v", c.Href, lerr)
			continue
		}
		for _, t := range tasks {
			store.AddTask(t)
		}
	}

	remotes, err := registry.LoadRemote()
	if err != nil {
		return err
	}
	for _, c := range remotes {
		cache := rc.Load(c.Href)
		for _, t := range cache.Tasks {
			store.AddTask(t)
		}
	}
	return nil
}

// runSync drives the controller's synchronous sync path, used by `cfait
// sync`.
func (a *app) runSync(ctx context.Context) ([]string, error) {
	return a.controller.Sync(ctx)
}
