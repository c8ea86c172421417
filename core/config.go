package core

import (
	"path"
	"time"

	"github.com/jonboulle/clockwork"
	bolt "go.etcd.io/bbolt"

	"github.com/eureka-network/proof-experiments/common/log"
	"github.com/eureka-network/proof-experiments/ledger"
	"github.com/eureka-network/proof-experiments/prover"
)

// ConfigOption is a function that applies a specific setting to a Config.
type ConfigOption func(*Config)

// Config holds all relevant information for an accountd daemon to run.
type Config struct {
	configFolder   string
	dbFolder       string
	keyFolder      string
	listenAddr     string
	boltOpts       *bolt.Options
	memoryStore    bool
	backendKind    prover.BackendKind
	backends       []prover.Backend
	provingTimeout time.Duration
	entryCbs       []func(*ledger.Entry)
	logger         log.Logger
	clock          clockwork.Clock
}

// NewConfig returns the config to pass to the daemon with the default options
// set and the updated values given by the options.
func NewConfig(opts ...ConfigOption) *Config {
	c := &Config{
		configFolder:   DefaultConfigFolder(),
		listenAddr:     DefaultListenAddr,
		backendKind:    DefaultBackend,
		provingTimeout: DefaultProvingTimeout,
		logger:         log.DefaultLogger(),
		clock:          clockwork.NewRealClock(),
	}
	c.dbFolder = path.Join(c.configFolder, DefaultDbFolder)
	c.keyFolder = path.Join(c.configFolder, DefaultKeyFolder)
	for i := range opts {
		opts[i](c)
	}
	return c
}

// ConfigFolder returns the folder under which the daemon stores all its
// state.
func (c *Config) ConfigFolder() string {
	return c.configFolder
}

// DBFolder returns the folder under which the ledger db file lives.
func (c *Config) DBFolder() string {
	return c.dbFolder
}

// KeyFolder returns the folder under which circuit key material lives.
func (c *Config) KeyFolder() string {
	return c.keyFolder
}

// ListenAddress returns the configured HTTP API bind address.
func (c *Config) ListenAddress() string {
	return c.listenAddr
}

// ProvingTimeout returns the deadline applied to a single proof job.
func (c *Config) ProvingTimeout() time.Duration {
	return c.provingTimeout
}

// BackendKind returns the proving system selected for submissions.
func (c *Config) BackendKind() prover.BackendKind {
	return c.backendKind
}

// Logger returns the logger associated with this config.
func (c *Config) Logger() log.Logger {
	return c.logger
}

func (c *Config) callbacks(e *ledger.Entry) {
	for _, fn := range c.entryCbs {
		fn(e)
	}
}

// WithConfigFolder sets the base configuration folder to the given string.
func WithConfigFolder(folder string) ConfigOption {
	return func(c *Config) {
		c.configFolder = folder
		c.dbFolder = path.Join(folder, DefaultDbFolder)
		c.keyFolder = path.Join(folder, DefaultKeyFolder)
	}
}

// WithDbFolder sets the path folder for the ledger db file. This path is NOT
// relative to the config folder if set.
func WithDbFolder(folder string) ConfigOption {
	return func(c *Config) {
		c.dbFolder = folder
	}
}

// WithBoltOptions applies boltdb specific options when storing ledger
// entries.
func WithBoltOptions(opts *bolt.Options) ConfigOption {
	return func(c *Config) {
		c.boltOpts = opts
	}
}

// WithMemoryStore keeps the ledger in memory. Entries do not survive a
// restart; meant for tests and ephemeral runs.
func WithMemoryStore() ConfigOption {
	return func(c *Config) {
		c.memoryStore = true
	}
}

// WithListenAddress sets the HTTP API bind address.
func WithListenAddress(addr string) ConfigOption {
	return func(c *Config) {
		c.listenAddr = addr
	}
}

// WithBackend selects the proving system used for submissions.
func WithBackend(kind prover.BackendKind) ConfigOption {
	return func(c *Config) {
		c.backendKind = kind
	}
}

// WithExtraBackends registers additional proof backends on top of the
// built-in ones. A backend with a known kind shadows the built-in one.
func WithExtraBackends(backends ...prover.Backend) ConfigOption {
	return func(c *Config) {
		c.backends = append(c.backends, backends...)
	}
}

// WithProvingTimeout bounds each proof generation job.
func WithProvingTimeout(t time.Duration) ConfigOption {
	return func(c *Config) {
		c.provingTimeout = t
	}
}

// WithEntryCallback registers a function called after every appended ledger
// entry.
func WithEntryCallback(fn func(*ledger.Entry)) ConfigOption {
	return func(c *Config) {
		c.entryCbs = append(c.entryCbs, fn)
	}
}

// WithLogger sets the daemon logger.
func WithLogger(l log.Logger) ConfigOption {
	return func(c *Config) {
		c.logger = l
	}
}

// WithClock sets the clock used for entry timestamps and retry backoff.
func WithClock(clk clockwork.Clock) ConfigOption {
	return func(c *Config) {
		c.clock = clk
	}
}
