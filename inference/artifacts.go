package inference

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"

	"health-alert-inference/analytics"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPipelineFile  = "supervised_pipeline.json"
	DefaultThresholdFile = "supervised_threshold.json"
)

var log = logrus.WithField("component", "inference")

// ArtifactSource reads model artifacts by name.
type ArtifactSource interface {
	Read(ctx context.Context, name string) ([]byte, error)
	String() string
}

// DirSource reads artifacts from a local directory.
type DirSource struct {
	Dir string
}

func (d DirSource) Read(_ context.Context, name string) ([]byte, error) {
	p := filepath.Join(d.Dir, name)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.Wrapf(err, "read artifact %s", p)
	}
	return data, nil
}

func (d DirSource) String() string {
	return "dir:" + d.Dir
}

type S3Options struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Source reads artifacts from an S3-compatible bucket.
type S3Source struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewS3Source(opts S3Options) (*S3Source, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create s3 client for %s", opts.Endpoint)
	}
	return &S3Source{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func (s *S3Source) Read(ctx context.Context, name string) ([]byte, error) {
	key := path.Join(s.prefix, name)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "get s3://%s/%s", s.bucket, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, errors.Wrapf(err, "read s3://%s/%s", s.bucket, key)
	}
	return data, nil
}

func (s *S3Source) String() string {
	return "s3://" + path.Join(s.bucket, s.prefix)
}

// Model is the loaded pipeline and its decision threshold.
type Model struct {
	Pipeline  *Pipeline
	Threshold float64
}

// LoadModel reads both artifacts. The threshold file is required; a missing
// tau key inside it falls back to analytics.DefaultThreshold.
func LoadModel(ctx context.Context, src ArtifactSource, pipelineFile, thresholdFile string) (*Model, error) {
	log.Infof("loading model artifacts from %s", src)

	data, err := src.Read(ctx, pipelineFile)
	if err != nil {
		return nil, err
	}
	pipeline, err := ParsePipeline(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", pipelineFile)
	}

	data, err = src.Read(ctx, thresholdFile)
	if err != nil {
		return nil, err
	}
	threshold, err := ParseThreshold(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", thresholdFile)
	}

	log.Infof("model %s (version %s) loaded: %d numeric, %d categorical features, tau=%.4f",
		pipeline.Name, pipeline.Version, len(pipeline.NumericFeatures), len(pipeline.CategoricalFeatures), threshold)
	return &Model{Pipeline: pipeline, Threshold: threshold}, nil
}

type thresholdFile struct {
	Tau *float64 `json:"tau"`
}

func ParseThreshold(data []byte) (float64, error) {
	var tf thresholdFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return 0, errors.Wrap(err, "decode threshold")
	}
	if tf.Tau == nil {
		return analytics.DefaultThreshold, nil
	}
	return *tf.Tau, nil
}
