// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

// FileContents is a string containing the commented example config for mnd.
const FileContents = `[Application Options]

; ------------------------------------------------------------------------------
; Data settings
; ------------------------------------------------------------------------------

; The directory to store the masternode cache, the payment votes and the spork
; database.  The default is ~/.mnd/data on POSIX OSes and $LOCALAPPDATA/Mnd/data
; on Windows.  Environment variables are expanded so they may be used.
; datadir=~/.mnd/data

; The directory to write logs to.
; logdir=~/.mnd/logs

; Backend used for the spork database: leveldb or pebble.
; sporkdb=leveldb


; ------------------------------------------------------------------------------
; Network settings
; ------------------------------------------------------------------------------

; Use testnet.
; testnet=1

; Use the regression test network.
; regtest=1

; Connect via a SOCKS5 proxy.  NOTE: Specifying a proxy will disable listening
; for incoming connections unless listen addresses are provided via the
; 'listen' option.
; proxy=127.0.0.1:9050
; proxyuser=
; proxypass=

; Add persistent peers to connect to as desired.  One peer per line.
; addpeer=192.168.1.1
; addpeer=10.0.0.2:9765

; Only connect to the given peers.  Listening is disabled.
; connect=192.168.1.1

; Interfaces to listen on.  The default listens on all interfaces on the
; default port of the network.
; listen=0.0.0.0:9765

; Maximum number of inbound and outbound peers.
; maxpeers=125

; Ban score at which a misbehaving peer is disconnected and banned, and how
; long the ban lasts.
; banthreshold=100
; banduration=24h


; ------------------------------------------------------------------------------
; Chain RPC settings
; ------------------------------------------------------------------------------

; The full node providing blocks and unspent outputs.
; rpcconnect=localhost:51473
; rpcuser=
; rpcpass=
; rpccert=~/.mnd/rpc.cert
; notls=1


; ------------------------------------------------------------------------------
; Masternode settings
; ------------------------------------------------------------------------------

; Run a masternode.  The operator key signs pings and payment votes.
; masternode=1
; masternodeprivkey=
; masternodeaddr=1.2.3.4:9765

; Collateral of a hot masternode that activates itself.  Leave unset for a
; masternode started remotely by the collateral wallet.
; collateralkey=
; collateraltx=
; collateralindex=0

; masternode.conf file listing remote masternodes controlled from here.
; mnconf=~/.mnd/masternode.conf

; Signed announcements to relay once the list is synced, in hex.
; relaybroadcast=


; ------------------------------------------------------------------------------
; Spork settings
; ------------------------------------------------------------------------------

; Private key allowed to sign sporks.
; sporkkey=


; ------------------------------------------------------------------------------
; Debug
; ------------------------------------------------------------------------------

; Debug logging level.
; Valid levels are {trace, debug, info, warn, error, critical}
; You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set
; log level for individual subsystems.  Use mnd --debuglevel=show to list
; available subsystems.
; debuglevel=info

; The port used to listen for HTTP profile requests.  The profile server will
; be disabled if this option is not specified.  The profile information can be
; accessed at http://localhost:<profileport>/debug/pprof once running.
; profile=6061
`
