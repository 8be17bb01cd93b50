// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gitlab.com/embercoin/emberd/corelog"
	"gitlab.com/embercoin/emberd/database"
	"gitlab.com/embercoin/emberd/emberutil"
	"gitlab.com/embercoin/emberd/node/blockchain"
	"gitlab.com/embercoin/emberd/node/blockchain/indexers"
	"gitlab.com/embercoin/emberd/node/chaindata"
	"gitlab.com/embercoin/emberd/types/chaincfg"
)

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Block processing can cause bursty allocations.  This limits the
	// garbage collector from excessively overallocating during bursts.
	debug.SetGCPercent(10)

	// Work around defer not working after os.Exit()
	if err := emberdMain(); err != nil {
		fmt.Println("FATAL:", err)
		os.Exit(1)
	}
}

// emberdMain is the real main function for emberd.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func emberdMain() error {
	// Load configuration and parse command line.
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Route the subsystem loggers through a single configured root.
	log := corelog.New("node", cfg.logLevel, cfg.LogConfig)
	blockchain.UseLogger(log.With().Str("unit", "chain").Logger())
	chaindata.UseLogger(log.With().Str("unit", "chaindata").Logger())
	indexers.UseLogger(log.With().Str("unit", "indexers").Logger())
	database.UseLogger(log.With().Str("unit", "database").Logger())

	defer log.Info().Msg("Shutdown complete")

	// Show version at startup.
	log.Info().Msgf("Version %s", version())

	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem.
	interrupt := interruptListener(log.With().Str("unit", "signal").Logger())
	defer log.Info().Msg("Gracefully shutting down the server...")

	// Enable http profiling server if requested.
	if cfg.Profile != "" {
		go func() {
			listenAddr := net.JoinHostPort("", cfg.Profile)
			log.Info().Msgf("Profile server listening on %s", listenAddr)
			profileRedirect := http.RedirectHandler("/debug/pprof",
				http.StatusSeeOther)
			http.Handle("/", profileRedirect)
			err := http.ListenAndServe(listenAddr, nil)
			if err != nil {
				log.Error().Err(err).Msg("profile listen and serve failed")
			}
		}()
	}

	// Write cpu profile if requested.
	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			log.Error().Err(err).Msg("Unable to create cpu profile")
			return err
		}
		_ = pprof.StartCPUProfile(f)
		defer f.Close()
		defer pprof.StopCPUProfile()
	}

	// Load the block database.
	db, err := loadBlockDB(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to load block database")
		return err
	}
	defer func() {
		log.Info().Msg("Gracefully shutting down the database...")
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close the database")
		}
	}()

	// Return now if an interrupt signal was triggered during database
	// load.
	if interruptRequested(interrupt) {
		return nil
	}

	// Drop the transaction index and exit if requested.
	if cfg.DropTxIndex {
		if err := indexers.DropTxIndex(db, interrupt); err != nil {
			log.Error().Err(err).Msg("failed to drop transaction index")
			return err
		}
		return nil
	}

	// Expose chain metrics when a listen address is configured.
	var metricsRegistry *prometheus.Registry
	if cfg.MetricsListen != "" {
		metricsRegistry = prometheus.NewRegistry()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(metricsRegistry,
				promhttp.HandlerOpts{}))
			log.Info().Msgf("Metrics server listening on %s", cfg.MetricsListen)
			err := http.ListenAndServe(cfg.MetricsListen, mux)
			if err != nil {
				log.Error().Err(err).Msg("metrics listen and serve failed")
			}
		}()
	}

	// Create an index manager when the transaction index is enabled.
	var indexManager blockchain.IndexManager
	if cfg.TxIndex {
		log.Info().Msg("Transaction index is enabled")
		indexManager = indexers.NewManager(db,
			[]indexers.Indexer{indexers.NewTxIndex(db)})
	}

	// Build the chain instance.  This loads the chain state from the
	// database and catches up any enabled indexes.
	var registerer prometheus.Registerer
	if metricsRegistry != nil {
		registerer = metricsRegistry
	}
	chain, err := blockchain.New(&blockchain.Config{
		DB:              db,
		ChainParams:     cfg.params,
		Checkpoints:     mergeCheckpoints(cfg.params.Checkpoints, cfg.checkpoints),
		TimeSource:      chaindata.NewMedianTime(),
		Interrupt:       interrupt,
		IndexManager:    indexManager,
		MetricsRegistry: registerer,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize the chain")
		return err
	}

	chain.Subscribe(chainEventLogger(log.With().Str("unit", "events").Logger()))

	best := chain.BestSnapshot()
	log.Info().
		Int32("height", best.Height).
		Stringer("hash", &best.Hash).
		Uint64("totalTxns", best.TotalTxns).
		Msg("Node started")

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems.
	<-interrupt
	return nil
}

// chainEventLogger returns a notification callback which logs chain events as
// they occur.
func chainEventLogger(log zerolog.Logger) blockchain.NotificationCallback {
	return func(notification *blockchain.Notification) {
		switch notification.Type {
		case blockchain.NTBlockConnected:
			if block, ok := notification.Data.(*emberutil.Block); ok {
				log.Debug().
					Int32("height", block.Height()).
					Stringer("hash", block.Hash()).
					Msg("block connected")
			}

		case blockchain.NTBlockDisconnected:
			if block, ok := notification.Data.(*emberutil.Block); ok {
				log.Debug().
					Int32("height", block.Height()).
					Stringer("hash", block.Hash()).
					Msg("block disconnected")
			}

		case blockchain.NTReorganization:
			data, ok := notification.Data.(*blockchain.ReorganizationNtfnsData)
			if !ok {
				return
			}
			log.Info().
				Stringer("oldTip", data.OldTip.GetHash()).
				Stringer("newTip", data.NewTip.GetHash()).
				Int32("newHeight", data.NewTip.Height()).
				Msg("chain reorganization")
		}
	}
}

// loadBlockDB loads (or creates when needed) the block database taking into
// account the selected database backend.  The database is placed in a
// per-network directory so multiple networks can share a data directory.
func loadBlockDB(cfg *config, log zerolog.Logger) (database.DB, error) {
	dbPath := blockDBPath(cfg)
	log.Info().Msgf("Loading block database from '%s'", dbPath)

	db, err := database.Open(cfg.DBType, dbPath)
	if err != nil {
		// Return the error if it's not because the database doesn't
		// exist.
		dbErr, ok := err.(database.Error)
		if !ok || dbErr.ErrorCode != database.ErrDbDoesNotExist {
			return nil, err
		}

		// Create the db if it does not exist.
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, err
		}
		db, err = database.Create(cfg.DBType, dbPath)
		if err != nil {
			return nil, err
		}
	}

	log.Info().Msg("Block database loaded")
	return db, nil
}

// blockDBPath returns the path to the block database given the configured
// data directory, network and database type.
func blockDBPath(cfg *config) string {
	dbName := "blocks_" + cfg.DBType
	return filepath.Join(cfg.DataDir, cfg.params.Name, dbName)
}

// mergeCheckpoints returns the two slices of checkpoints merged and sorted by
// height with additional checkpoints replacing the defaults at the same
// height.
func mergeCheckpoints(defaultCheckpoints, additional []chaincfg.Checkpoint) []chaincfg.Checkpoint {
	numDefault := len(defaultCheckpoints)
	extended := make(map[int32]chaincfg.Checkpoint, numDefault+len(additional))
	for _, checkpoint := range defaultCheckpoints {
		extended[checkpoint.Height] = checkpoint
	}
	for _, checkpoint := range additional {
		extended[checkpoint.Height] = checkpoint
	}

	checkpoints := make([]chaincfg.Checkpoint, 0, len(extended))
	for _, checkpoint := range extended {
		checkpoints = append(checkpoints, checkpoint)
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].Height < checkpoints[j].Height
	})
	return checkpoints
}
