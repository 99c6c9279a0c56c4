// Package cloud holds the configuration objects and the opened cloud handle
// for a cloud-backed storage engine: bucket and log-shipping descriptors,
// the aggregate FS options, the FS handle itself, and the storage
// environment that mediates all remote I/O for engine instances.
package cloud

import (
	"os"
	"strings"

	"github.com/driftdb/driftdb"
)

// DefaultBucketEnvPrefix is the default prefix for bucket environment
// variables: <PREFIX>_BUCKET_NAME, <PREFIX>_REGION, <PREFIX>_OBJECT_PATH.
const DefaultBucketEnvPrefix = "DRIFTDB_CLOUD"

const (
	envSuffixBucketName = "_BUCKET_NAME"
	envSuffixRegion     = "_REGION"
	envSuffixObjectPath = "_OBJECT_PATH"
)

// BucketOptions describes one remote bucket endpoint: name, region, and the
// object path prefix under which engine state is stored.
//
// BucketOptions is not internally synchronized. Concurrent reads of an
// unmutated descriptor are safe; concurrent mutation requires external
// synchronization.
type BucketOptions struct {
	bucketName string
	region     string
	objectPath string
}

// NewBucketOptions creates an empty bucket descriptor. The environment is
// not consulted; use DefaultBucketOptionsFromEnv or ReadFromEnv for
// environment seeding.
func NewBucketOptions() *BucketOptions {
	return &BucketOptions{}
}

// DefaultBucketOptionsFromEnv creates a bucket descriptor seeded from the
// environment under DefaultBucketEnvPrefix.
func DefaultBucketOptionsFromEnv() *BucketOptions {
	return NewBucketOptions().ReadFromEnv(DefaultBucketEnvPrefix)
}

// checkField rejects values incompatible with downstream representations.
func checkField(field, value string) error {
	if strings.ContainsRune(value, 0) {
		return driftdb.NewErrorf(driftdb.ErrValidationFailed,
			"field %q contains an embedded NUL byte", field)
	}
	return nil
}

// SetBucketName sets the bucket name.
func (o *BucketOptions) SetBucketName(name string) error {
	if err := checkField("bucket_name", name); err != nil {
		return err
	}
	o.bucketName = name
	return nil
}

// SetRegion sets the bucket region.
func (o *BucketOptions) SetRegion(region string) error {
	if err := checkField("region", region); err != nil {
		return err
	}
	o.region = region
	return nil
}

// SetObjectPath sets the object path prefix.
func (o *BucketOptions) SetObjectPath(path string) error {
	if err := checkField("object_path", path); err != nil {
		return err
	}
	o.objectPath = path
	return nil
}

// BucketName returns the bucket name.
func (o *BucketOptions) BucketName() string { return o.bucketName }

// Region returns the bucket region.
func (o *BucketOptions) Region() string { return o.region }

// ObjectPath returns the object path prefix.
func (o *BucketOptions) ObjectPath() string { return o.objectPath }

// Clone returns a deep copy. The clone and the receiver never share mutable
// state.
func (o *BucketOptions) Clone() *BucketOptions {
	clone := *o
	return &clone
}

// ReadFromEnv returns a copy of the descriptor with every field whose
// <prefix>_<FIELD> environment variable is set overlaid from the
// environment. Unset variables leave the corresponding field untouched. The
// receiver is never mutated.
func (o *BucketOptions) ReadFromEnv(prefix string) *BucketOptions {
	result := o.Clone()
	if v, ok := os.LookupEnv(prefix + envSuffixBucketName); ok {
		result.bucketName = v
	}
	if v, ok := os.LookupEnv(prefix + envSuffixRegion); ok {
		result.region = v
	}
	if v, ok := os.LookupEnv(prefix + envSuffixObjectPath); ok {
		result.objectPath = v
	}
	return result
}

// IsValid reports whether the descriptor can be used in an FS
// configuration: all fields non-empty and the bucket name well-formed. Pure
// query, no side effects.
func (o *BucketOptions) IsValid() bool {
	return o.bucketName != "" &&
		o.region != "" &&
		o.objectPath != "" &&
		validBucketName(o.bucketName)
}

// validBucketName checks the common S3-compatible naming subset: 3-63
// characters, lowercase letters, digits, hyphens and dots, starting and
// ending with a letter or digit.
func validBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.':
			if i == 0 || i == len(name)-1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
