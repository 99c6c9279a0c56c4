package cloud

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftdb/driftdb"
)

func TestBucketOptions_SettersAndGetters(t *testing.T) {
	opts := NewBucketOptions()
	require.NoError(t, opts.SetBucketName("engine-state"))
	require.NoError(t, opts.SetRegion("us-east-1"))
	require.NoError(t, opts.SetObjectPath("prod/db"))

	assert.Equal(t, "engine-state", opts.BucketName())
	assert.Equal(t, "us-east-1", opts.Region())
	assert.Equal(t, "prod/db", opts.ObjectPath())
}

func TestBucketOptions_RejectsEmbeddedNUL(t *testing.T) {
	opts := NewBucketOptions()

	err := opts.SetBucketName("bad\x00name")
	require.Error(t, err)
	assert.True(t, driftdb.IsCode(err, driftdb.ErrValidationFailed))
	assert.Empty(t, opts.BucketName())

	assert.Error(t, opts.SetRegion("us\x00east"))
	assert.Error(t, opts.SetObjectPath("a\x00b"))
}

func TestBucketOptions_ReadFromEnv_Overlay(t *testing.T) {
	t.Setenv("TESTBUCKET_BUCKET_NAME", "env-bucket")
	t.Setenv("TESTBUCKET_REGION", "eu-west-2")

	opts := NewBucketOptions()
	require.NoError(t, opts.SetBucketName("code-bucket"))
	require.NoError(t, opts.SetObjectPath("code/path"))

	seeded := opts.ReadFromEnv("TESTBUCKET")

	// Set variables overlay, unset variables leave the field alone.
	assert.Equal(t, "env-bucket", seeded.BucketName())
	assert.Equal(t, "eu-west-2", seeded.Region())
	assert.Equal(t, "code/path", seeded.ObjectPath())

	// The receiver is never mutated.
	assert.Equal(t, "code-bucket", opts.BucketName())
	assert.Empty(t, opts.Region())
}

func TestBucketOptions_ReadFromEnv_EmptyValueOverlays(t *testing.T) {
	t.Setenv("TESTBUCKET_REGION", "")

	opts := NewBucketOptions()
	require.NoError(t, opts.SetRegion("us-east-1"))

	seeded := opts.ReadFromEnv("TESTBUCKET")
	assert.Empty(t, seeded.Region())
}

func TestBucketOptions_CloneIndependence(t *testing.T) {
	opts := NewBucketOptions()
	require.NoError(t, opts.SetBucketName("original"))

	clone := opts.Clone()
	require.NoError(t, clone.SetBucketName("mutated"))

	assert.Equal(t, "original", opts.BucketName())
	assert.Equal(t, "mutated", clone.BucketName())
}

func TestBucketOptions_IsValid(t *testing.T) {
	opts := NewBucketOptions()
	assert.False(t, opts.IsValid())

	require.NoError(t, opts.SetBucketName("engine-state"))
	assert.False(t, opts.IsValid())

	require.NoError(t, opts.SetRegion("us-east-1"))
	assert.False(t, opts.IsValid())

	require.NoError(t, opts.SetObjectPath("prod/db"))
	assert.True(t, opts.IsValid())

	// Clearing a field flips the descriptor back to invalid.
	require.NoError(t, opts.SetRegion(""))
	assert.False(t, opts.IsValid())
}

func TestBucketOptions_BucketNameRules(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"abc", true},
		{"engine-state.prod", true},
		{"a1", false},
		{"UpperCase", false},
		{"-leading", false},
		{"trailing-", false},
		{"under_score", false},
	}
	for _, tc := range cases {
		opts := NewBucketOptions()
		require.NoError(t, opts.SetBucketName(tc.name))
		require.NoError(t, opts.SetRegion("us-east-1"))
		require.NoError(t, opts.SetObjectPath("db"))
		assert.Equal(t, tc.valid, opts.IsValid(), "bucket name %q", tc.name)
	}
}
