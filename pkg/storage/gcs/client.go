package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const (
	pingTimeout  = 5 * time.Second
	cacheControl = "public, max-age=31536000"
)

// Object describes an uploaded asset.
type Object struct {
	PublicID    string `json:"publicId"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Uploader is the subset of the client consumed by background processors.
type Uploader interface {
	Upload(ctx context.Context, folder, name, contentType string, data []byte) (*Object, error)
	Delete(ctx context.Context, publicID string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Client struct {
	storage       *storage.Client
	defaultBucket string
	publicBaseURL string
	now           func() time.Time
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	var opts []option.ClientOption
	switch {
	case gcp.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case gcp.ApplicationCredentials != "":
		bytes, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(bytes))
	}

	sc, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	client := &Client{
		storage:       sc,
		defaultBucket: cfg.BucketName,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		now:           time.Now,
	}

	if err := client.Ping(ctx); err != nil {
		_ = sc.Close()
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}
	return client, nil
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

func (c *Client) Close() error {
	if c == nil || c.storage == nil {
		return nil
	}
	return c.storage.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.storage == nil {
		return errors.New("gcs client not initialized")
	}
	if c.defaultBucket == "" {
		return errors.New("gcs bucket not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.storage.Bucket(c.defaultBucket).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket check failed: %w", err)
	}
	return nil
}

// Upload writes data under folder and returns its public descriptor. The
// object name is prefixed with a timestamp so repeated uploads of the same
// file never overwrite each other.
func (c *Client) Upload(ctx context.Context, folder, name, contentType string, data []byte) (*Object, error) {
	if c == nil || c.storage == nil {
		return nil, errors.New("gcs client not initialized")
	}
	if len(data) == 0 {
		return nil, errors.New("empty upload")
	}

	publicID := ObjectName(folder, name, c.now())
	w := c.storage.Bucket(c.defaultBucket).Object(publicID).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = cacheControl

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write object %s: %w", publicID, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize object %s: %w", publicID, err)
	}

	return &Object{
		PublicID:    publicID,
		URL:         PublicURL(c.publicBaseURL, c.defaultBucket, publicID),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

// Delete removes an object by public id. Missing objects are not an error.
func (c *Client) Delete(ctx context.Context, publicID string) error {
	if c == nil || c.storage == nil {
		return errors.New("gcs client not initialized")
	}
	err := c.storage.Bucket(c.defaultBucket).Object(publicID).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %s: %w", publicID, err)
	}
	return nil
}

// ObjectName builds "<folder>/<unixmillis>-<sanitized name>".
func ObjectName(folder, name string, at time.Time) string {
	base := sanitizeName(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if base == "" || base == "." || base == "/" {
		base = "file"
	}
	object := fmt.Sprintf("%d-%s", at.UnixMilli(), base)
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return object
	}
	return folder + "/" + object
}

// PublicURL returns the browser-reachable URL for an object.
func PublicURL(baseURL, bucket, object string) string {
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com"
	}
	segments := strings.Split(object, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	return b.String()
}
