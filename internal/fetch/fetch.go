// Package fetch reads surface and table files from local paths or remote
// locations (http, ftp, s3). Remote reads retry transient failures with
// exponential backoff.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/lox/reservoirviz/internal/httputil"
	"github.com/lox/reservoirviz/internal/metrics"
)

// ErrNotFound is returned when the location does not exist.
var ErrNotFound = errors.New("fetch: not found")

const DefaultMaxWait = 2 * time.Minute

// S3Config configures access to an S3 compatible object store.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

type Fetcher struct {
	http            *http.Client
	s3              *minio.Client
	maxWait         time.Duration
	initialInterval time.Duration
	log             *zap.Logger
}

type Option func(*Fetcher) error

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) error {
		f.http = c
		return nil
	}
}

// WithS3 enables s3://bucket/key locations.
func WithS3(cfg S3Config) Option {
	return func(f *Fetcher) error {
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return fmt.Errorf("s3 client: %w", err)
		}
		f.s3 = client
		return nil
	}
}

// WithRetry sets the first retry delay and the total time spent retrying.
func WithRetry(initial, maxWait time.Duration) Option {
	return func(f *Fetcher) error {
		f.initialInterval = initial
		f.maxWait = maxWait
		return nil
	}
}

func New(log *zap.Logger, opts ...Option) (*Fetcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Fetcher{
		http:    httputil.NewClient(),
		maxWait: DefaultMaxWait,
		log:     log,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Fetch returns the contents of location: a bare path, file://, http(s)://,
// ftp://[user:pass@]host[:port]/path or s3://bucket/key.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare path, including Windows drive letters.
		return readFile(location)
	}

	switch u.Scheme {
	case "file":
		return readFile(u.Path)
	case "http", "https":
		return f.remote(ctx, u.Scheme, location, func() ([]byte, error) { return f.fetchHTTP(ctx, location) })
	case "ftp":
		return f.remote(ctx, u.Scheme, location, func() ([]byte, error) { return fetchFTP(ctx, u) })
	case "s3":
		if f.s3 == nil {
			return nil, fmt.Errorf("%s: s3 is not configured", location)
		}
		return f.remote(ctx, u.Scheme, location, func() ([]byte, error) { return f.fetchS3(ctx, u) })
	default:
		return nil, fmt.Errorf("%s: unsupported scheme %q", location, u.Scheme)
	}
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return b, err
}

func (f *Fetcher) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.maxWait
	if f.initialInterval > 0 {
		bo.InitialInterval = f.initialInterval
	}
	return backoff.WithContext(bo, ctx)
}

// remote runs op with retries. op marks non-transient failures with
// backoff.Permanent.
func (f *Fetcher) remote(ctx context.Context, scheme, location string, op func() ([]byte, error)) ([]byte, error) {
	start := time.Now()
	var body []byte
	operation := func() error {
		b, err := op()
		if err != nil {
			return err
		}
		body = b
		return nil
	}
	notify := func(err error, d time.Duration) {
		f.log.Warn("fetch failed, retrying", zap.String("location", redact(location)), zap.Duration("backoff", d), zap.Error(err))
	}

	err := backoff.RetryNotify(operation, f.newBackOff(ctx), notify)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.FetchLatency.WithLabelValues(scheme, status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", redact(location), err)
	}
	f.log.Debug("fetched", zap.String("location", redact(location)), zap.Int("bytes", len(body)), zap.Duration("elapsed", time.Since(start)))
	return body, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// ftpLogin returns the credentials embedded in u, anonymous by default.
func ftpLogin(u *url.URL) (user, pass string) {
	user, pass = "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	return user, pass
}

func ftpAddr(u *url.URL) string {
	if u.Port() == "" {
		return u.Hostname() + ":21"
	}
	return u.Host
}

func fetchFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	conn, err := ftp.Dial(ftpAddr(u), ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, pass := ftpLogin(u)
	if err := conn.Login(user, pass); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("ftp login: %w", err))
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable {
			return nil, backoff.Permanent(ErrNotFound)
		}
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, u *url.URL) ([]byte, error) {
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	obj, err := f.s3.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		switch minio.ToErrorResponse(err).Code {
		case "NoSuchKey", "NoSuchBucket":
			return nil, backoff.Permanent(ErrNotFound)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return body, nil
}

// redact hides URL passwords in logs and errors.
func redact(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.User == nil {
		return location
	}
	return u.Redacted()
}
