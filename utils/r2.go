package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2Config holds the Cloudflare R2 credentials for the sprite bucket.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether enough settings are present to talk to R2.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

// ObjectPutter is the slice of the S3 API the mirror needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2Mirror copies sprites into R2 and hands back CDN URLs.
type R2Mirror struct {
	client     ObjectPutter
	httpClient *http.Client
	bucket     string
	cdnBaseURL string
}

func NewR2Mirror(ctx context.Context, cfg R2Config) (*R2Mirror, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	cdn := cfg.CDNBaseURL
	if cdn == "" {
		cdn = endpoint + "/" + cfg.Bucket
	}
	return NewR2MirrorWithClient(client, cfg.Bucket, cdn), nil
}

// NewR2MirrorWithClient builds a mirror around an existing S3 client.
func NewR2MirrorWithClient(client ObjectPutter, bucket, cdnBaseURL string) *R2Mirror {
	return &R2Mirror{
		client:     client,
		httpClient: HTTPClient,
		bucket:     bucket,
		cdnBaseURL: strings.TrimSuffix(cdnBaseURL, "/"),
	}
}

// SpriteKey is the object key for a species sprite, e.g. "sprites/25.gif".
func SpriteKey(speciesID int, sourceURL string) string {
	ext := path.Ext(sourceURL)
	if ext == "" {
		ext = ".png"
	}
	return fmt.Sprintf("sprites/%d%s", speciesID, ext)
}

// MaxSpriteBytes caps a single sprite download.
const MaxSpriteBytes = 4 << 20

// MirrorSprite downloads sourceURL and uploads it to the bucket, returning the public URL.
func (m *R2Mirror) MirrorSprite(ctx context.Context, speciesID int, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build sprite request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download sprite: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sprite download returned %d", resp.StatusCode)
	}

	buf := new(bytes.Buffer)
	n, err := io.Copy(buf, io.LimitReader(resp.Body, MaxSpriteBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read sprite: %w", err)
	}
	if n > MaxSpriteBytes {
		return "", fmt.Errorf("sprite exceeds %d bytes", MaxSpriteBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(buf.Bytes())
	}
	key := SpriteKey(speciesID, sourceURL)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	return fmt.Sprintf("%s/%s", m.cdnBaseURL, key), nil
}
