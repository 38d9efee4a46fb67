// Package bundlesync implements the content-addressed bundle
// synchronizer: it resolves an archive URL from (bundle, machine,
// version), downloads or reuses a local staged copy, extracts it
// atomically, and applies the `.frida.in` template rewrite.
//
// Grounded on bitswalk/ldf's download/downloader.go (temp-file-then-
// atomic-rename download pattern, io.MultiWriter progress hashing) and
// download/verifier.go (HEAD-based polling).
package bundlesync

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bitswalk/releng/internal/errs"
)

// ErrNotFound is returned by a Fetcher when the requested object does not
// exist at the remote (HTTP 404 or S3 NoSuchKey).
var ErrNotFound = errs.ErrBundleNotFound

// Fetcher abstracts archive transport so bundlesync can be pointed at a
// plain HTTP root or an S3-compatible bucket.
type Fetcher interface {
	// Get streams the object at url into w. Returns ErrNotFound if absent.
	Get(ctx context.Context, url string, w io.Writer) error
	// Head reports whether the object at url exists, without downloading
	// its body.
	Head(ctx context.Context, url string) (exists bool, err error)
}

// HTTPFetcher is the default Fetcher, a thin wrapper around net/http
// matching the "HTTP GET"/"HEAD" contract.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher with a client configured the way
// downloader.go configures its download client: no timeout, since bundle
// archives can be large and slow.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: 0}}
}

func (f *HTTPFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *HTTPFetcher) Get(ctx context.Context, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.ErrNetwork.WithCause(err).WithMessagef("building request for %s", url)
	}
	req.Header.Set("User-Agent", "relengctl/1.0")

	resp, err := f.client().Do(req)
	if err != nil {
		return errs.ErrNetwork.WithCause(err).WithMessagef("GET %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound.WithMessagef("bundle not found at %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		return errs.ErrNetwork.WithMessagef("GET %s: unexpected status %d", url, resp.StatusCode)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return errs.ErrNetwork.WithCause(err).WithMessagef("reading body of %s", url)
	}
	return nil
}

func (f *HTTPFetcher) Head(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, errs.ErrNetwork.WithCause(err).WithMessagef("building HEAD request for %s", url)
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return false, errs.ErrNetwork.WithCause(err).WithMessagef("HEAD %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 400 {
		return false, errs.ErrNetwork.WithMessagef("HEAD %s: unexpected status %d", url, resp.StatusCode)
	}
	return true, nil
}

// S3Fetcher is selected when the configured bundle root carries an
// "s3://" scheme, ADDED for deployments that mirror bundles into an
// S3-compatible bucket instead of a plain HTTP root. Grounded on
// storage/s3.go's endpoint/credential wiring, generalized from an upload
// backend to a read-only GetObject/HeadObject source.
type S3Fetcher struct {
	Client *s3.Client
	Bucket string
}

// NewS3Fetcher builds an S3Fetcher the way storage/s3.go's NewS3
// constructs its client: static credentials, path-style addressing.
func NewS3Fetcher(endpoint, region, bucket, accessKeyID, secretAccessKey string) *S3Fetcher {
	client := s3.New(s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		BaseEndpoint: aws.String(endpoint),
		UsePathStyle: true,
	})
	return &S3Fetcher{Client: client, Bucket: bucket}
}

// keyFromURL extracts the object key from an "s3://bucket/key" URL, or
// from a plain "key" path if no scheme is present.
func keyFromURL(url string) string {
	trimmed := strings.TrimPrefix(url, "s3://")
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

func (f *S3Fetcher) Get(ctx context.Context, url string, w io.Writer) error {
	key := keyFromURL(url)
	out, err := f.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return ErrNotFound.WithMessagef("bundle not found at s3://%s/%s", f.Bucket, key)
		}
		return errs.ErrNetwork.WithCause(err).WithMessagef("GetObject s3://%s/%s", f.Bucket, key)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return errs.ErrNetwork.WithCause(err).WithMessagef("reading s3://%s/%s", f.Bucket, key)
	}
	return nil
}

func (f *S3Fetcher) Head(ctx context.Context, url string) (bool, error) {
	key := keyFromURL(url)
	_, err := f.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, errs.ErrNetwork.WithCause(err).WithMessagef("HeadObject s3://%s/%s", f.Bucket, key)
	}
	return true, nil
}

func isS3NotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "StatusCode: 404")
}

// FetcherForRoot picks S3Fetcher when the bundle root URL has an s3://
// scheme and s3cfg is non-nil, and HTTPFetcher otherwise.
func FetcherForRoot(root string, s3cfg *S3Config) Fetcher {
	if strings.HasPrefix(root, "s3://") && s3cfg != nil {
		return NewS3Fetcher(s3cfg.Endpoint, s3cfg.Region, s3cfg.Bucket, s3cfg.AccessKeyID, s3cfg.SecretAccessKey)
	}
	return NewHTTPFetcher()
}

// S3Config carries the credentials needed to construct an S3Fetcher.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// waitPollInterval is the HEAD-polling cadence for Wait.
const waitPollInterval = 5 * time.Minute

// Wait polls url with HEAD requests at a 5-minute cadence and returns as
// soon as any response other than "not found" is observed.
func Wait(ctx context.Context, fetcher Fetcher, url string) error {
	for {
		exists, err := fetcher.Head(ctx, url)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitPollInterval):
		}
	}
}
