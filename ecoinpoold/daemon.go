package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/MobiusL/ecoinpool/api"
	"github.com/MobiusL/ecoinpool/modules"
	"github.com/MobiusL/ecoinpool/modules/coindaemon"
	"github.com/MobiusL/ecoinpool/modules/poolmanager"
	"github.com/MobiusL/ecoinpool/modules/poolstore"
	"github.com/MobiusL/ecoinpool/modules/stratum"
	"github.com/MobiusL/ecoinpool/persist"
)

// poolDefinitions reads the pool configurations out of the loaded config
// file. The coin daemon section of each pool stays an opaque blob.
func poolDefinitions() ([]modules.PoolConfig, error) {
	raw := viper.Get("pools")
	if raw == nil {
		return nil, nil
	}
	// Round-trip through json so that the opaque daemon configuration ends
	// up as a raw message, the same shape the API submits.
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var cfgs []modules.PoolConfig
	err = json.Unmarshal(b, &cfgs)
	if err != nil {
		return nil, err
	}
	return cfgs, nil
}

// startDaemon assembles the modules and serves the API until the daemon is
// stopped.
func startDaemon() error {
	dataDir := viper.GetString("data-dir")
	err := os.MkdirAll(dataDir, 0700)
	if err != nil {
		return err
	}
	log, err := persist.NewLogger(filepath.Join(dataDir, "ecoinpoold.log"))
	if err != nil {
		return err
	}
	defer log.Close()

	fmt.Println("Loading...")
	store, err := poolstore.New(filepath.Join(dataDir, modules.PoolStoreDir))
	if err != nil {
		return err
	}
	defer store.Close()

	listeners := stratum.NewServer(log)
	defer listeners.Close()
	daemons := coindaemon.NewSupervisor(log)
	defer daemons.Close()

	manager, err := poolmanager.New(store, listeners, daemons, filepath.Join(dataDir, modules.PoolManagerDir))
	if err != nil {
		return err
	}

	srv, err := api.NewServer(
		viper.GetString("api-addr"),
		viper.GetString("agent"),
		viper.GetString("api-password"),
		manager,
	)
	if err != nil {
		manager.Close()
		return err
	}

	// Seed the store with the configured pool definitions and start every
	// pool the store knows about.
	defs, err := poolDefinitions()
	if err != nil {
		srv.Close()
		return err
	}
	for _, cfg := range defs {
		if err := manager.ReloadConfig(cfg); err != nil {
			log.Println("ERROR: unable to start pool", cfg.ID, ":", err)
			fmt.Fprintln(os.Stderr, "Unable to start pool", cfg.ID, ":", err)
		}
	}
	ids, err := store.Pools()
	if err != nil {
		srv.Close()
		return err
	}
	for _, id := range ids {
		if _, running := manager.Pool(id); running {
			continue
		}
		if err := manager.StartPool(id); err != nil {
			log.Println("ERROR: unable to start pool", id, ":", err)
			fmt.Fprintln(os.Stderr, "Unable to start pool", id, ":", err)
		}
	}

	// Changed pool definitions are routed to the running coordinators as
	// configuration reloads.
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Println("INFO: config file changed:", e.Name)
		defs, err := poolDefinitions()
		if err != nil {
			log.Println("ERROR: ignoring malformed config change:", err)
			return
		}
		for _, cfg := range defs {
			if err := manager.ReloadConfig(cfg); err != nil {
				log.Println("ERROR: unable to reload pool", cfg.ID, ":", err)
			}
		}
	})
	if viper.ConfigFileUsed() != "" {
		viper.WatchConfig()
	}

	// Stop the server on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\rCaught stop signal, quitting...")
		srv.Close()
	}()

	fmt.Println("Pool daemon is ready. API listening on", viper.GetString("api-addr"))
	err = srv.Serve()
	if err != nil {
		return err
	}
	return nil
}
