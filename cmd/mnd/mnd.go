// Copyright (c) 2013-2016 The btcsuite developers
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
	"runtime/debug"

	"github.com/divitproject/mnd/chainrpc"
	"github.com/divitproject/mnd/database/engine"
	"github.com/divitproject/mnd/internal/limits"
	mndlog "github.com/divitproject/mnd/internal/log"
	"github.com/divitproject/mnd/internal/version"
)

var cfg *config

// mndMain is the real main function for mnd.  It is necessary to work around
// the fact that deferred functions do not run when os.Exit() is called.
func mndMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	tcfg, params, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg

	if err := mndlog.InitLogRotator(filepath.Join(cfg.LogDir,
		defaultLogFilename)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer func() {
		if mndlog.LogRotator != nil {
			mndlog.LogRotator.Close()
		}
	}()

	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem.
	interrupt := interruptListener()
	defer mnddLog.Info("Shutdown complete")

	// Show version at startup.
	mnddLog.Infof("Version %s (network %s)", version.String(), params.Name)

	// Enable http profiling server if requested.
	if cfg.Profile != "" {
		go func() {
			listenAddr := net.JoinHostPort("", cfg.Profile)
			mnddLog.Infof("Profile server listening on %s", listenAddr)
			profileRedirect := http.RedirectHandler("/debug/pprof",
				http.StatusSeeOther)
			http.Handle("/", profileRedirect)
			mnddLog.Errorf("%v", http.ListenAndServe(listenAddr, nil))
		}()
	}

	// Return now if an interrupt signal was triggered.
	if interruptRequested(interrupt) {
		return nil
	}

	// Load the spork database.
	dbPath := filepath.Join(cfg.DataDir, sporkDBDirectoryName)
	mnddLog.Infof("Loading spork database '%s'", dbPath)
	db, err := engine.Open(cfg.SporkDB, dbPath, true)
	if err != nil {
		mnddLog.Errorf("%v", err)
		return err
	}
	defer func() {
		// Ensure the database is sync'd and closed on shutdown.
		mnddLog.Infof("Gracefully shutting down the spork database...")
		db.Close()
	}()

	chain, err := chainrpc.New(&chainrpc.Config{
		Host:       cfg.RPCConnect,
		User:       cfg.RPCUser,
		Pass:       cfg.RPCPass,
		CertFile:   cfg.RPCCert,
		DisableTLS: cfg.NoTLS,
		Proxy:      cfg.Proxy,
		ProxyUser:  cfg.ProxyUser,
		ProxyPass:  cfg.ProxyPass,
	})
	if err != nil {
		mnddLog.Errorf("Unable to set up the chain RPC client: %v", err)
		return err
	}
	defer chain.Close()

	// Create server and start it.
	server, err := newServer(cfg, params, chain, db)
	if err != nil {
		mnddLog.Errorf("Unable to start server: %v", err)
		return err
	}
	defer func() {
		mnddLog.Infof("Gracefully shutting down the server...")
		server.Stop()
		server.WaitForShutdown()
		srvrLog.Infof("Server shutdown complete")
	}()
	server.Start()

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems.
	<-interrupt
	return nil
}

func main() {
	// Message bursts during the list sync allocate heavily.
	debug.SetGCPercent(20)

	// Up some limits.
	if err := limits.SetLimits(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set limits: %v\n", err)
		os.Exit(1)
	}

	// Work around defer not working after os.Exit()
	if err := mndMain(); err != nil {
		os.Exit(1)
	}
}
