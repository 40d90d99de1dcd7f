package ocall

import "github.com/sirupsen/logrus"

// Config holds the Gateway's tuning parameters. These are not correctness
// parameters — they may be tuned by measurement without changing the
// protocol's semantics.
type Config struct {
	// SpinIterations bounds the XBL spin phase (RPC_SPINLOCK_TIMEOUT in
	// the original).
	SpinIterations int
	// UntrustedStackSize is the nominal size, in bytes, of each enclave
	// thread's untrusted stack. Typical size is 2 MiB. NewGateway does not
	// read it: the stack's size is that of the ustack.Stack passed in.
	UntrustedStackSize uintptr
	// MaxUntrustedStackBuf is the size threshold above which a buffer is
	// allocated on the untrusted heap via mmap_untrusted instead of the
	// untrusted stack. Concretely THREAD_STACK_SIZE/4 = 512 KiB in the
	// original.
	MaxUntrustedStackBuf uintptr
	// Logger receives structured diagnostics (fallback-to-direct-exit
	// events). Never nil after DefaultConfig.
	Logger *logrus.Logger
}

// DefaultConfig mirrors the constants from the original PAL source
// (enclave_ocalls.c).
func DefaultConfig() Config {
	const threadStackSize = 2 << 20 // 2 MiB
	return Config{
		SpinIterations:       1000,
		UntrustedStackSize:   threadStackSize,
		MaxUntrustedStackBuf: threadStackSize / 4,
		Logger:               logrus.StandardLogger(),
	}
}

// Option mutates a Config being built by NewGateway, following the
// functional-options idiom gvisor uses for flipcall.Endpoint.Init.
type Option func(*Config)

// WithSpinIterations overrides the XBL spin budget.
func WithSpinIterations(n int) Option {
	return func(c *Config) { c.SpinIterations = n }
}

// WithMaxUntrustedStackBuf overrides the stack/heap buffer size threshold.
func WithMaxUntrustedStackBuf(n uintptr) Option {
	return func(c *Config) { c.MaxUntrustedStackBuf = n }
}

// WithLogger overrides the Gateway's logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
