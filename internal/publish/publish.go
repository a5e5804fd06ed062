// Package publish uploads the output tree to an S3 bucket.
package publish

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/radiowazoo/wwwbuild/internal/config"
	"github.com/radiowazoo/wwwbuild/internal/errors"
)

// DefaultConcurrency is how many objects are uploaded at once.
const DefaultConcurrency = 8

// Client is the part of the S3 API the uploader needs. *s3.Client
// implements it.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures an Uploader.
type Options struct {
	// Bucket is the destination bucket.
	Bucket string

	// Prefix is prepended to every key.
	Prefix string

	// CacheControl is set on every object when not empty.
	CacheControl string

	// Concurrency caps parallel uploads. Default: DefaultConcurrency.
	Concurrency int

	// DryRun lists the objects without uploading them.
	DryRun bool

	Logger *slog.Logger
}

// Object is one uploaded file.
type Object struct {
	Key         string
	ContentType string
	Size        int64
}

// Report lists the objects of a publish run, in key order.
type Report struct {
	Objects []Object
}

// Bytes returns the total size of the objects.
func (r *Report) Bytes() int64 {
	var n int64
	for _, o := range r.Objects {
		n += o.Size
	}
	return n
}

// Uploader copies a directory tree to a bucket.
type Uploader struct {
	client  Client
	options Options
}

// NewUploader creates an uploader. client may be nil for dry runs.
func NewUploader(client Client, options Options) *Uploader {
	if options.Concurrency <= 0 {
		options.Concurrency = DefaultConcurrency
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Uploader{client: client, options: options}
}

// Upload puts every regular file under root at Prefix + its relative path.
// Uploads run concurrently; the first failure cancels the rest.
func (u *Uploader) Upload(ctx context.Context, root string) (*Report, error) {
	if u.options.Bucket == "" {
		return nil, errors.New("E181")
	}
	if !u.options.DryRun && u.client == nil {
		return nil, errors.New("E181").WithDetail("No S3 client configured")
	}

	files, err := listFiles(root)
	if err != nil {
		return nil, errors.New("E182").Wrap(err)
	}

	objects := make([]Object, len(files))
	var mu sync.Mutex
	var done int

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(u.options.Concurrency)
	for i, rel := range files {
		g.Go(func() error {
			obj, err := u.put(ctx, root, rel)
			if err != nil {
				return err
			}
			objects[i] = obj
			mu.Lock()
			done++
			n := done
			mu.Unlock()
			u.options.Logger.Info("uploaded", "key", obj.Key, "type", obj.ContentType, "size", obj.Size, "n", n, "of", len(files))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Report{Objects: objects}, nil
}

func (u *Uploader) put(ctx context.Context, root, rel string) (Object, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return Object{}, errors.New("E182").Wrap(err)
	}
	obj := Object{
		Key:         ObjectKey(u.options.Prefix, rel),
		ContentType: ContentType(rel),
		Size:        int64(len(data)),
	}
	if u.options.DryRun {
		return obj, nil
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(u.options.Bucket),
		Key:           aws.String(obj.Key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(obj.Size),
		ContentType:   aws.String(obj.ContentType),
	}
	if u.options.CacheControl != "" {
		input.CacheControl = aws.String(u.options.CacheControl)
	}
	if _, err := u.client.PutObject(ctx, input); err != nil {
		return Object{}, errors.New("E182").
			WithDetail("s3://" + u.options.Bucket + "/" + obj.Key).
			Wrap(err)
	}
	return obj, nil
}

// listFiles returns the slash-separated relative paths of the regular
// files under root, in lexical order.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

// ObjectKey joins prefix and a relative path into an object key.
func ObjectKey(prefix, rel string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".htm":   "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "text/javascript; charset=utf-8",
	".mjs":   "text/javascript; charset=utf-8",
	".map":   "application/json",
	".json":  "application/json",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".ico":   "image/x-icon",
	".webp":  "image/webp",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".txt":   "text/plain; charset=utf-8",
}

// ContentType returns the Content-Type for a file name.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := contentTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// NewClient creates an S3 client for cfg. Credentials come from
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN as read
// through getenv.
func NewClient(cfg config.PublishConfig, getenv func(string) string) (*s3.Client, error) {
	creds := aws.Credentials{
		AccessKeyID:     getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    getenv("AWS_SESSION_TOKEN"),
		Source:          "Environment",
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, errors.New("E181").
			WithDetail("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}

	region := cfg.Region
	if region == "" {
		region = config.DefaultRegion
	}

	opts := s3.Options{
		Region: region,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		}),
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts), nil
}
