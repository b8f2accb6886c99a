package tuplestore

import (
	"math"

	"go.uber.org/zap"
)

// defaultMapSize64 is 1 TiB, matching the reference cortex's 64-bit default.
// The 32-bit/1GiB branch named in the spec is not reachable on the 64-bit
// targets this module supports, but the constant is kept named for parity.
const (
	defaultMapSize32 = int64(1) << 30 // 1 GiB
	defaultMapSize64 = int64(1) << 40 // 1 TiB
)

const defaultMaxReaders = 4

// config collects the options an Open call is configured with.
type config struct {
	mapSize         int64
	durableMetadata bool
	durableData     bool
	lock            bool
	maxReaders      int
	logger          *zap.Logger
}

func defaultConfig() config {
	mapSize := defaultMapSize64
	if math.MaxInt == math.MaxInt32 {
		mapSize = defaultMapSize32
	}
	return config{
		mapSize:         mapSize,
		durableMetadata: false,
		durableData:     true,
		lock:            true,
		maxReaders:      defaultMaxReaders,
		logger:          zap.NewNop(),
	}
}

// Option configures a Store at Open time.
type Option func(*config)

// WithMapSize overrides the mdbx environment's mapped address-space size.
func WithMapSize(bytes int64) Option {
	return func(c *config) { c.mapSize = bytes }
}

// WithDurableMetadata controls whether mdbx syncs its metadata page on every
// commit (lmdb:metasync). Default false.
func WithDurableMetadata(durable bool) Option {
	return func(c *config) { c.durableMetadata = durable }
}

// WithDurableData controls whether mdbx fsyncs data on every commit
// (lmdb:sync). Default true.
func WithDurableData(durable bool) Option {
	return func(c *config) { c.durableData = durable }
}

// WithLock controls whether mdbx takes its inter-process lock file
// (lmdb:lock). Forced off when WithMaxReaders(1) is set, matching the
// reference cortex. Default true.
func WithLock(lock bool) Option {
	return func(c *config) { c.lock = lock }
}

// WithMaxReaders bounds the number of concurrent reader transactions
// (lmdb:maxreaders). Default 4.
func WithMaxReaders(n int) Option {
	return func(c *config) {
		c.maxReaders = n
		if n == 1 {
			c.lock = false
		}
	}
}

// WithLogger installs a structured logger. Default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}
