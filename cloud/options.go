package cloud

import (
	"sync"

	"github.com/driftdb/driftdb"
)

// FSOptions is the aggregate configuration an FS handle is built from: the
// source (and optional destination) bucket, optional log shipping, the
// keep-local-files policy, persistent cache parameters, and the logging
// verbosity.
//
// FSOptions is a single shared cell: every consumer derives from the same
// instance by pointer, and one mutex serializes all setters and accessors.
// The cell is a construction-time object. Mutating it after an FS has been
// built from it only affects values that are re-read through accessors
// (cache path and size are read at engine open time); values baked into the
// FS at construction, such as the bucket endpoints, are not re-applied.
type FSOptions struct {
	mu sync.Mutex

	srcBucket             *BucketOptions
	dstBucket             *BucketOptions
	kafkaLog              *KafkaLogOptions
	keepLocalFiles        bool
	persistentCachePath   string
	persistentCacheSizeGB uint64
	logLevel              driftdb.LogLevel
}

// NewFSOptions creates a configuration with defaults: no buckets, no log
// shipping, KeepLocalFiles false, no persistent cache, Info log level.
func NewFSOptions() *FSOptions {
	return &FSOptions{logLevel: driftdb.LogLevelInfo}
}

// SetSrcBucket sets the source bucket. The descriptor is deep-copied so the
// configuration never shares mutable state with the caller's descriptor.
func (o *FSOptions) SetSrcBucket(bucket *BucketOptions) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.srcBucket = bucket.Clone()
}

// SrcBucket returns a copy of the source bucket descriptor, or nil.
func (o *FSOptions) SrcBucket() *BucketOptions {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.srcBucket == nil {
		return nil
	}
	return o.srcBucket.Clone()
}

// SetDstBucket sets the destination bucket. When no destination is set, the
// source bucket serves both reads and writes.
func (o *FSOptions) SetDstBucket(bucket *BucketOptions) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dstBucket = bucket.Clone()
}

// DstBucket returns a copy of the destination bucket descriptor, or nil.
func (o *FSOptions) DstBucket() *BucketOptions {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dstBucket == nil {
		return nil
	}
	return o.dstBucket.Clone()
}

// SetKafkaLog sets the log-shipping descriptor. The descriptor is shared by
// pointer: several configurations may reuse one instance without
// duplicating it.
func (o *FSOptions) SetKafkaLog(kafkaLog *KafkaLogOptions) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kafkaLog = kafkaLog
}

// KafkaLog returns the shared log-shipping descriptor, or nil.
func (o *FSOptions) KafkaLog() *KafkaLogOptions {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.kafkaLog
}

// SetKeepLocalFiles sets the keep-local-files policy. When false, every
// flushed segment is uploaded synchronously and the local copy deleted
// immediately after the upload; when true, segments land locally first and
// are uploaded asynchronously, with reopen fetching any cloud-only segments
// back.
func (o *FSOptions) SetKeepLocalFiles(keep bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.keepLocalFiles = keep
}

// KeepLocalFiles returns the keep-local-files policy.
func (o *FSOptions) KeepLocalFiles() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.keepLocalFiles
}

// SetPersistentCachePath sets the directory of the local persistent cache
// used for repeated reads of remotely-stored segments.
func (o *FSOptions) SetPersistentCachePath(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.persistentCachePath = path
}

// PersistentCachePath returns the persistent cache directory, or "".
func (o *FSOptions) PersistentCachePath() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.persistentCachePath
}

// SetPersistentCacheSizeGB sets the persistent cache size budget in
// gigabytes. Zero means no budget is configured.
func (o *FSOptions) SetPersistentCacheSizeGB(sizeGB uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.persistentCacheSizeGB = sizeGB
}

// PersistentCacheSizeGB returns the persistent cache size budget.
func (o *FSOptions) PersistentCacheSizeGB() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.persistentCacheSizeGB
}

// SetLogLevel sets the logging verbosity for the FS handle and the engine
// instances built from it.
func (o *FSOptions) SetLogLevel(level driftdb.LogLevel) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logLevel = level
}

// LogLevel returns the configured logging verbosity.
func (o *FSOptions) LogLevel() driftdb.LogLevel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.logLevel
}

// Validate checks the configuration before handle construction: the source
// bucket must be present and valid, the destination bucket and log-shipping
// descriptor must be valid when present, and a cache size budget without a
// cache path is rejected.
func (o *FSOptions) Validate() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.srcBucket == nil {
		return driftdb.NewError(driftdb.ErrValidationFailed,
			"source bucket is required")
	}
	if !o.srcBucket.IsValid() {
		return driftdb.NewError(driftdb.ErrValidationFailed,
			"source bucket descriptor is invalid")
	}
	if o.dstBucket != nil && !o.dstBucket.IsValid() {
		return driftdb.NewError(driftdb.ErrValidationFailed,
			"destination bucket descriptor is invalid")
	}
	if o.kafkaLog != nil && !o.kafkaLog.IsValid() {
		return driftdb.NewError(driftdb.ErrValidationFailed,
			"log-shipping descriptor is invalid")
	}
	if o.persistentCacheSizeGB > 0 && o.persistentCachePath == "" {
		return driftdb.NewError(driftdb.ErrValidationFailed,
			"persistent cache size configured without a cache path")
	}
	return nil
}
