// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/banscore"
	"github.com/divitproject/mnd/database/engine"
	mndlog "github.com/divitproject/mnd/internal/log"
	"github.com/divitproject/mnd/internal/version"
	"github.com/divitproject/mnd/mnconf"
	"github.com/divitproject/mnd/netparams"
	"github.com/divitproject/mnd/sampleconfig"
	flags "github.com/jessevdk/go-flags"

	_ "github.com/divitproject/mnd/database/engine/leveldb"
	_ "github.com/divitproject/mnd/database/engine/pebbledb"
)

const (
	defaultConfigFilename = "mnd.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "mnd.log"
	defaultMaxPeers       = 125
	defaultBanDuration    = time.Hour * 24
	defaultSporkDB        = "leveldb"
)

var (
	defaultHomeDir    = btcutil.AppDataDir("mnd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
	defaultRPCCert    = filepath.Join(defaultHomeDir, "rpc.cert")
)

// Default chain RPC ports of the full node per network.
var defaultRPCPorts = map[wire.BitcoinNet]string{
	netparams.MainNet: "51473",
	netparams.TestNet: "51475",
	netparams.RegTest: "51477",
}

// config defines the configuration options for mnd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir      string `long:"logdir" description:"Directory to log output"`

	TestNet bool `long:"testnet" description:"Use the test network"`
	RegTest bool `long:"regtest" description:"Use the regression test network"`

	AddPeers      []string      `short:"a" long:"addpeer" description:"Add a peer to connect with at startup"`
	ConnectPeers  []string      `long:"connect" description:"Connect only to the specified peers at startup"`
	DisableListen bool          `long:"nolisten" description:"Disable listening for incoming connections -- NOTE: Listening is automatically disabled if the --connect or --proxy options are used without also specifying listen interfaces via --listen"`
	Listeners     []string      `long:"listen" description:"Add an interface/port to listen for connections (default all interfaces port: 9765, testnet: 8763, regtest: 51476)"`
	MaxPeers      int           `long:"maxpeers" description:"Max number of inbound and outbound peers"`
	BanThreshold  uint32        `long:"banthreshold" description:"Maximum allowed ban score before disconnecting and banning misbehaving peers."`
	BanDuration   time.Duration `long:"banduration" description:"How long to ban misbehaving peers.  Valid time units are {s, m, h}.  Minimum 1 second"`

	Proxy     string `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser string `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass string `long:"proxypass" default-mask:"-" description:"Password for proxy server"`

	RPCConnect string `short:"c" long:"rpcconnect" description:"Hostname/IP and port of the full node RPC server"`
	RPCUser    string `short:"u" long:"rpcuser" description:"Username for chain RPC connections"`
	RPCPass    string `short:"P" long:"rpcpass" default-mask:"-" description:"Password for chain RPC connections"`
	RPCCert    string `long:"rpccert" description:"File containing the certificate of the chain RPC server"`
	NoTLS      bool   `long:"notls" description:"Disable TLS for the chain RPC connection"`

	Masternode        bool     `long:"masternode" description:"Run a masternode"`
	MasternodeAddr    string   `long:"masternodeaddr" description:"External address and port of the masternode"`
	MasternodePrivKey string   `long:"masternodeprivkey" default-mask:"-" description:"Operator private key of the masternode in WIF"`
	CollateralKey     string   `long:"collateralkey" default-mask:"-" description:"Private key in WIF paying the collateral, for a masternode that activates itself"`
	CollateralTx      string   `long:"collateraltx" description:"Transaction id of the collateral output"`
	CollateralIndex   uint32   `long:"collateralindex" description:"Output index of the collateral output"`
	MNConf            string   `long:"mnconf" description:"Path to the masternode.conf file listing remote masternodes"`
	RelayBroadcasts   []string `long:"relaybroadcast" description:"Hex encoded signed masternode announcement to relay once the list is synced"`

	SporkKey string `long:"sporkkey" default-mask:"-" description:"Private key in WIF allowed to sign sporks"`
	SporkDB  string `long:"sporkdb" description:"Database backend for sporks {leveldb, pebble}"`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	Profile    string `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65536"`
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// normalizeAddresses returns a new slice with all the passed peer addresses
// normalized with the given default port, and all duplicates removed.
func normalizeAddresses(addrs []string, defaultPort string) []string {
	result := make([]string, 0, len(addrs))
	seen := map[string]struct{}{}
	for _, addr := range addrs {
		addr = normalizeAddress(addr, defaultPort)
		if _, ok := seen[addr]; !ok {
			result = append(result, addr)
			seen[addr] = struct{}{}
		}
	}
	return result
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// createDefaultConfigFile writes the sample configuration to destPath.
func createDefaultConfigFile(destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0700); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte(sampleconfig.FileContents), 0600)
}

// newConfigParser returns a new command line parser for cfg.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
}

// activeParams returns the network parameters selected by cfg.
func activeParams(cfg *config) *netparams.Params {
	switch {
	case cfg.TestNet:
		return &netparams.TestNetParams
	case cfg.RegTest:
		return &netparams.RegTestParams
	}
	return &netparams.MainNetParams
}

// usageError wraps err so it is reported together with the usage text.
func usageError(parser *flags.Parser, funcName, format string, args ...interface{}) error {
	err := fmt.Errorf("%s: "+format, append([]interface{}{funcName}, args...)...)
	fmt.Fprintln(os.Stderr, err)
	fmt.Fprintln(os.Stderr, "")
	parser.WriteHelp(os.Stderr)
	return err
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in mnd functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options.  Command line options always take precedence.
func loadConfig() (*config, *netparams.Params, []string, error) {
	return loadConfigArgs(os.Args[1:])
}

// loadConfigArgs is loadConfig for an explicit argument list.
func loadConfigArgs(args []string) (*config, *netparams.Params, []string, error) {
	// Default config.
	cfg := config{
		ConfigFile:   defaultConfigFile,
		DataDir:      defaultDataDir,
		LogDir:       defaultLogDir,
		DebugLevel:   defaultLogLevel,
		MaxPeers:     defaultMaxPeers,
		BanThreshold: banscore.BanThreshold,
		BanDuration:  defaultBanDuration,
		RPCCert:      defaultRPCCert,
		SporkDB:      defaultSporkDB,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.String())
		os.Exit(0)
	}

	// Create the default config file when none exists yet.
	if preCfg.ConfigFile == defaultConfigFile && !fileExists(preCfg.ConfigFile) {
		if err := createDefaultConfigFile(preCfg.ConfigFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating a default config "+
				"file: %v\n", err)
		}
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, nil, err
	}

	const funcName = "loadConfig"

	// The two test networks can't be selected simultaneously.
	if cfg.TestNet && cfg.RegTest {
		return nil, nil, nil, usageError(parser, funcName, "the "+
			"testnet and regtest params can't be used together -- "+
			"choose one of the two")
	}
	params := activeParams(&cfg)
	defaultPort := strconv.Itoa(int(params.DefaultPort))

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", mndlog.SupportedSubsystems())
		os.Exit(0)
	}

	// Append the network type to the data and log directories so they
	// are "namespaced" per network.
	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir), params.Name)
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir), params.Name)
	cfg.RPCCert = cleanAndExpandPath(cfg.RPCCert)
	if cfg.MNConf != "" {
		cfg.MNConf = cleanAndExpandPath(cfg.MNConf)
	} else {
		cfg.MNConf = filepath.Join(cfg.DataDir, mnconf.DefaultFilename)
	}

	// Parse, validate, and set debug log level(s).
	if err := mndlog.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, nil, usageError(parser, funcName, "%v", err)
	}

	// Validate the spork database backend.
	supported := engine.SupportedTypes()
	i := sort.SearchStrings(supported, cfg.SporkDB)
	if i == len(supported) || supported[i] != cfg.SporkDB {
		return nil, nil, nil, usageError(parser, funcName, "the "+
			"specified spork database type [%v] is invalid -- "+
			"supported types %v", cfg.SporkDB, supported)
	}

	// Validate profile port number.
	if cfg.Profile != "" {
		profilePort, err := strconv.Atoi(cfg.Profile)
		if err != nil || profilePort < 1024 || profilePort > 65535 {
			return nil, nil, nil, usageError(parser, funcName, "the "+
				"profile port must be between 1024 and 65535")
		}
	}

	// Don't allow ban durations that are too short.
	if cfg.BanDuration < time.Second {
		return nil, nil, nil, usageError(parser, funcName, "the "+
			"banduration option may not be less than 1s -- parsed [%v]",
			cfg.BanDuration)
	}
	if cfg.BanThreshold == 0 {
		return nil, nil, nil, usageError(parser, funcName, "the "+
			"banthreshold option must be positive")
	}

	// --addpeer and --connect do not mix.
	if len(cfg.AddPeers) > 0 && len(cfg.ConnectPeers) > 0 {
		return nil, nil, nil, usageError(parser, funcName, "the "+
			"--addpeer and --connect options can not be mixed")
	}

	// The masternode needs its operator key.
	if cfg.Masternode && cfg.MasternodePrivKey == "" {
		return nil, nil, nil, usageError(parser, funcName, "the "+
			"--masternode option requires --masternodeprivkey")
	}
	if cfg.CollateralKey != "" || cfg.CollateralTx != "" {
		if !cfg.Masternode {
			return nil, nil, nil, usageError(parser, funcName, "the "+
				"collateral options require --masternode")
		}
		if cfg.CollateralKey == "" || cfg.CollateralTx == "" {
			return nil, nil, nil, usageError(parser, funcName, "the "+
				"--collateralkey and --collateraltx options must be "+
				"given together")
		}
		if _, err := chainhash.NewHashFromStr(cfg.CollateralTx); err != nil {
			return nil, nil, nil, usageError(parser, funcName,
				"invalid --collateraltx: %v", err)
		}
	}
	if cfg.MasternodeAddr != "" {
		cfg.MasternodeAddr = normalizeAddress(cfg.MasternodeAddr, defaultPort)
	}

	// The chain RPC server is required.
	if cfg.RPCConnect == "" {
		cfg.RPCConnect = "localhost"
	}
	cfg.RPCConnect = normalizeAddress(cfg.RPCConnect,
		defaultRPCPorts[params.Net])

	// Connecting only to given peers or through a proxy means no listening
	// unless listeners were asked for explicitly.
	if (len(cfg.ConnectPeers) > 0 || cfg.Proxy != "") &&
		len(cfg.Listeners) == 0 {

		cfg.DisableListen = true
	}
	if len(cfg.Listeners) == 0 && !cfg.DisableListen {
		cfg.Listeners = []string{net.JoinHostPort("", defaultPort)}
	}
	cfg.Listeners = normalizeAddresses(cfg.Listeners, defaultPort)

	// Add default port to all added peer addresses if needed and remove
	// duplicate addresses.
	cfg.AddPeers = normalizeAddresses(cfg.AddPeers, defaultPort)
	cfg.ConnectPeers = normalizeAddresses(cfg.ConnectPeers, defaultPort)

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		mnddLog.Warnf("%v", configFileError)
	}

	return &cfg, params, remainingArgs, nil
}
