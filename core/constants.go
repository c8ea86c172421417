package core

import (
	"os"
	"path"
	"time"

	"github.com/eureka-network/proof-experiments/prover"
)

// DefaultConfigFolderName is the name of the folder containing all accountd
// state.
const DefaultConfigFolderName = ".accountd"

// DefaultDbFolder is the name of the folder in which the ledger db file is
// saved.
const DefaultDbFolder = "db"

// DefaultKeyFolder is the name of the folder in which circuit key material is
// saved.
const DefaultKeyFolder = "keys"

// DefaultListenAddr is the address the HTTP API binds to when not configured.
const DefaultListenAddr = "127.0.0.1:8080"

// DefaultProvingTimeout bounds a single proof generation job. A proof still
// pending at the deadline resolves to a rejected ledger entry, never to a
// silent stall.
const DefaultProvingTimeout = 2 * time.Minute

// DefaultBackend is the proving system used when none is configured.
const DefaultBackend = prover.KindCircuit

// DefaultConfigFolder returns the default path of the configuration folder.
func DefaultConfigFolder() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigFolderName
	}
	return path.Join(home, DefaultConfigFolderName)
}
