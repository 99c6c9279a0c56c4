package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockS3Client implements s3API for testing.
type mockS3Client struct {
	putInput    *s3.PutObjectInput
	getInput    *s3.GetObjectInput
	deleteInput *s3.DeleteObjectInput
	headInput   *s3.HeadObjectInput
	listInputs  []*s3.ListObjectsV2Input

	getOutput   *s3.GetObjectOutput
	listOutputs []*s3.ListObjectsV2Output

	putErr  error
	getErr  error
	headErr error
}

func (m *mockS3Client) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.putInput = input
	if m.putErr != nil {
		return nil, m.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.getInput = input
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.getOutput, nil
}

func (m *mockS3Client) DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.deleteInput = input
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) HeadObject(ctx context.Context, input *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.headInput = input
	if m.headErr != nil {
		return nil, m.headErr
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.listInputs = append(m.listInputs, input)
	out := m.listOutputs[0]
	m.listOutputs = m.listOutputs[1:]
	return out, nil
}

func TestS3Store_PutPrefixesKey(t *testing.T) {
	client := &mockS3Client{}
	store := NewS3WithClient(client, "engine-state", "prod/db")

	err := store.Put(context.Background(), "seg-0001", bytes.NewReader([]byte("data")))
	require.NoError(t, err)
	require.NotNil(t, client.putInput)
	assert.Equal(t, "engine-state", aws.ToString(client.putInput.Bucket))
	assert.Equal(t, "prod/db/seg-0001", aws.ToString(client.putInput.Key))
}

func TestS3Store_PutError(t *testing.T) {
	client := &mockS3Client{putErr: errors.New("access denied")}
	store := NewS3WithClient(client, "engine-state", "")

	err := store.Put(context.Background(), "seg-0001", bytes.NewReader(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestS3Store_Get(t *testing.T) {
	client := &mockS3Client{
		getOutput: &s3.GetObjectOutput{
			Body: io.NopCloser(bytes.NewReader([]byte("remote data"))),
		},
	}
	store := NewS3WithClient(client, "engine-state", "prod/db")

	body, err := store.Get(context.Background(), "seg-0001")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, []byte("remote data"), data)
	assert.Equal(t, "prod/db/seg-0001", aws.ToString(client.getInput.Key))
}

func TestS3Store_Delete(t *testing.T) {
	client := &mockS3Client{}
	store := NewS3WithClient(client, "engine-state", "prod/db")

	require.NoError(t, store.Delete(context.Background(), "seg-0001"))
	assert.Equal(t, "prod/db/seg-0001", aws.ToString(client.deleteInput.Key))
}

func TestS3Store_ListTrimsPrefixAndFollowsTokens(t *testing.T) {
	client := &mockS3Client{
		listOutputs: []*s3.ListObjectsV2Output{
			{
				Contents: []types.Object{
					{Key: aws.String("prod/db/seg-0001"), Size: aws.Int64(10)},
				},
				IsTruncated:           aws.Bool(true),
				NextContinuationToken: aws.String("token-1"),
			},
			{
				Contents: []types.Object{
					{Key: aws.String("prod/db/seg-0002"), Size: aws.Int64(20)},
				},
				IsTruncated: aws.Bool(false),
			},
		},
	}
	store := NewS3WithClient(client, "engine-state", "prod/db")

	infos, err := store.List(context.Background(), "seg-")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "seg-0001", infos[0].Key)
	assert.Equal(t, int64(10), infos[0].Size)
	assert.Equal(t, "seg-0002", infos[1].Key)

	require.Len(t, client.listInputs, 2)
	assert.Equal(t, "prod/db/seg-", aws.ToString(client.listInputs[0].Prefix))
	assert.Equal(t, "token-1", aws.ToString(client.listInputs[1].ContinuationToken))
}

func TestS3Store_Exists(t *testing.T) {
	client := &mockS3Client{}
	store := NewS3WithClient(client, "engine-state", "")

	ok, err := store.Exists(context.Background(), "seg-0001")
	require.NoError(t, err)
	assert.True(t, ok)

	client.headErr = &types.NotFound{}
	ok, err = store.Exists(context.Background(), "seg-0001")
	require.NoError(t, err)
	assert.False(t, ok)

	client.headErr = errors.New("access denied")
	_, err = store.Exists(context.Background(), "seg-0001")
	assert.Error(t, err)
}

func TestS3Store_IsNotExist(t *testing.T) {
	store := NewS3WithClient(&mockS3Client{}, "engine-state", "")

	assert.True(t, store.IsNotExist(&types.NoSuchKey{}))
	assert.True(t, store.IsNotExist(&types.NotFound{}))
	assert.True(t, store.IsNotExist(ErrNotExist))
	assert.False(t, store.IsNotExist(nil))
	assert.False(t, store.IsNotExist(errors.New("access denied")))
}

func TestS3Store_NoObjectPath(t *testing.T) {
	client := &mockS3Client{}
	store := NewS3WithClient(client, "engine-state", "")

	require.NoError(t, store.Put(context.Background(), "seg-0001", bytes.NewReader(nil)))
	assert.Equal(t, "seg-0001", aws.ToString(client.putInput.Key))
}
