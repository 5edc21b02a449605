package utils

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = *in.Key
	f.contentType = *in.ContentType
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestSpriteKey(t *testing.T) {
	assert.Equal(t, "sprites/25.gif", SpriteKey(25, "https://cdn.example/animated/25.gif"))
	assert.Equal(t, "sprites/1.png", SpriteKey(1, "https://cdn.example/sprite/1"))
}

func TestR2Config_Enabled(t *testing.T) {
	assert.False(t, R2Config{}.Enabled())
	assert.True(t, R2Config{AccountID: "a", AccessKeyID: "k", AccessKeySecret: "s", Bucket: "b"}.Enabled())
}

func TestMirrorSprite_UploadsAndReturnsCDNURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write([]byte("GIF89a"))
	}))
	defer srv.Close()

	putter := &fakePutter{}
	mirror := NewR2MirrorWithClient(putter, "sprites-bucket", "https://cdn.pokecare.test/")

	url, err := mirror.MirrorSprite(context.Background(), 6, srv.URL+"/6.gif")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.pokecare.test/sprites/6.gif", url)
	assert.Equal(t, "sprites/6.gif", putter.key)
	assert.Equal(t, "image/gif", putter.contentType)
	assert.Equal(t, []byte("GIF89a"), putter.body)
}

func TestMirrorSprite_Errors(t *testing.T) {
	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer missing.Close()

	mirror := NewR2MirrorWithClient(&fakePutter{}, "b", "https://cdn")
	_, err := mirror.MirrorSprite(context.Background(), 1, missing.URL+"/1.gif")
	require.Error(t, err)

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png"))
	}))
	defer ok.Close()

	failing := NewR2MirrorWithClient(&fakePutter{err: errors.New("denied")}, "b", "https://cdn")
	_, err = failing.MirrorSprite(context.Background(), 1, ok.URL+"/1.png")
	require.ErrorContains(t, err, "denied")
}

func TestMirrorSprite_RejectsOversizedSprite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write(make([]byte, MaxSpriteBytes+1))
	}))
	defer srv.Close()

	putter := &fakePutter{}
	mirror := NewR2MirrorWithClient(putter, "b", "https://cdn")
	_, err := mirror.MirrorSprite(context.Background(), 6, srv.URL+"/6.gif")
	require.ErrorContains(t, err, "exceeds")
	assert.Empty(t, putter.key)
}
