// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	mndlog "github.com/divitproject/mnd/internal/log"
)

// Loggers of the daemon itself.  Library subsystems are wired to the shared
// backend by the internal/log package.
var (
	mnddLog = mndlog.MnddLog
	srvrLog = mndlog.SrvrLog
)
