package token

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/streamzip/pkg/common"
	"github.com/beam-cloud/streamzip/pkg/metrics"
)

const backgroundDownloadStartupDelay = time.Second * 30

type S3TokenizerOpts struct {
	Bucket         string
	Key            string
	Region         string
	Endpoint       string
	CachePath      string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	Metrics        *metrics.Metrics
}

// S3Tokenizer serves an object in S3 through ranged GetObject calls. When a
// CachePath is configured the whole object is downloaded in the background
// and subsequent reads come from the local file instead.
type S3Tokenizer struct {
	readAtTokenizer
}

type s3RangeReader struct {
	svc            *s3.Client
	bucket         string
	key            string
	size           int64
	localCachePath string
	cachedLocally  bool
	cacheFile      *os.File
	metrics        *metrics.Metrics
}

func NewS3Tokenizer(ctx context.Context, opts S3TokenizerOpts) (*S3Tokenizer, error) {
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if opts.AccessKey != "" && opts.SecretKey != "" {
		accessKey = opts.AccessKey
		secretKey = opts.SecretKey
	}

	cfg, err := getAWSConfig(ctx, accessKey, secretKey, opts.Region, opts.Endpoint)
	if err != nil {
		return nil, err
	}

	svc := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	head, err := svc.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(opts.Bucket),
		Key:    aws.String(opts.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot access object <s3://%s/%s>: %v", opts.Bucket, opts.Key, err)
	}

	reader := &s3RangeReader{
		svc:            svc,
		bucket:         opts.Bucket,
		key:            opts.Key,
		size:           *head.ContentLength,
		localCachePath: opts.CachePath,
		metrics:        opts.Metrics,
	}

	if opts.CachePath != "" {
		cacheFile, err := os.OpenFile(opts.CachePath, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache file <%s>: %v", opts.CachePath, err)
		}
		reader.cacheFile = cacheFile
		go reader.startBackgroundDownload()
	}

	return &S3Tokenizer{
		readAtTokenizer: readAtTokenizer{r: reader, size: reader.size},
	}, nil
}

func getAWSConfig(ctx context.Context, accessKey string, secretKey string, region string, endpoint string) (aws.Config, error) {
	var useDualStack aws.DualStackEndpointState

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if endpoint != "" {
		endpointResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL: endpoint,
			}, nil
		})
		loadOpts = append(loadOpts, config.WithEndpointResolverWithOptions(endpointResolver))
	}

	httpClient := &http.Client{}
	if common.IsIPv6Available() {
		useDualStack = aws.DualStackEndpointStateEnabled
		httpClient.Transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         common.DialContextIPv6,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	} else {
		useDualStack = aws.DualStackEndpointStateDisabled
	}
	loadOpts = append(loadOpts, config.WithUseDualStackEndpoint(useDualStack), config.WithHTTPClient(httpClient))

	if accessKey != "" && secretKey != "" {
		provider := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(provider))
	}

	return config.LoadDefaultConfig(ctx, loadOpts...)
}

func (r *s3RangeReader) ReadAtContext(ctx context.Context, p []byte, off int64) (int, error) {
	if r.cachedLocally {
		n, err := r.cacheFile.ReadAt(p, off)
		if err == nil || err == io.EOF {
			return n, err
		}
		// Fall back to the remote source if the cache file fails for some reason
	}
	return r.downloadRange(ctx, p, off)
}

func (r *s3RangeReader) downloadRange(ctx context.Context, p []byte, off int64) (int, error) {
	end := off + int64(len(p)) - 1
	if end >= r.size {
		end = r.size - 1
	}
	rangeHeader := fmt.Sprintf("bytes=%d-%d", off, end)

	startTime := time.Now()
	resp, err := r.svc.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.ReadFull(resp.Body, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}

	r.metrics.RecordRangeGet(fmt.Sprintf("s3://%s/%s", r.bucket, r.key), int64(n), time.Since(startTime))
	return n, err
}

func (r *s3RangeReader) startBackgroundDownload() {
	cacheFileInfo, err := r.cacheFile.Stat()
	if err == nil && cacheFileInfo.Size() == r.size {
		log.Info().Msgf("Cache file <%s> exists", r.localCachePath)
		r.cachedLocally = true
		return
	}

	// Wait a bit before kicking off the background download job
	time.Sleep(backgroundDownloadStartupDelay)

	tmpCacheFile := fmt.Sprintf("%s.%s", r.localCachePath, uuid.New().String()[:6])
	lockFilePath := fmt.Sprintf("%s.lock", r.localCachePath)

	fileLock := flock.New(lockFilePath)

	locked, err := fileLock.TryLock()
	if err != nil {
		log.Error().Msgf("Error while trying to acquire file lock: %v", err)
		return
	}

	if !locked {
		log.Error().Msgf("Another process is already caching %s, skipping download", r.localCachePath)
		return
	}

	defer fileLock.Unlock()
	defer os.Remove(lockFilePath)

	log.Info().Msgf("Caching <%s>", r.localCachePath)
	startTime := time.Now()
	downloader := manager.NewDownloader(r.svc)
	downloader.Concurrency = 32

	f, err := os.Create(tmpCacheFile)
	if err != nil {
		log.Error().Msgf("Failed to create file %q, %v", tmpCacheFile, err)
		return
	}
	defer f.Close()

	_, err = downloader.Download(context.TODO(), f, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
	})
	if err != nil {
		log.Error().Msgf("Failed to download object: %v", err)
		os.Remove(tmpCacheFile)
		return
	}

	err = os.Rename(tmpCacheFile, r.localCachePath)
	if err != nil {
		log.Error().Msgf("Failed to move downloaded file to cache path %q, %v", r.localCachePath, err)
		return
	}

	// Close open file handle after rename
	r.cacheFile.Close()

	cacheFile, err := os.OpenFile(r.localCachePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return
	}

	log.Info().Msgf("Object <%v> cached in %v", r.localCachePath, time.Since(startTime))

	r.cacheFile = cacheFile
	r.cachedLocally = true
}

// Cleanup closes the local cache file handle, if any.
func (t *S3Tokenizer) Cleanup() error {
	if r, ok := t.r.(*s3RangeReader); ok && r.cacheFile != nil {
		return r.cacheFile.Close()
	}
	return nil
}
