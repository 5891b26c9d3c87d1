package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "HEALTH_ALERT"

type Options struct {
	Server    Server
	Artifacts Artifacts
	Redis     Redis
	History   History
	Kafka     Kafka
	Alerts    Alerts
	CORS      CORS
}

type Server struct {
	Address      string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Artifacts struct {
	Dir           string
	PipelineFile  string
	ThresholdFile string
	S3            S3
}

// S3 selects an S3-compatible bucket as artifact source when Bucket is set.
type S3 struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Redis holds patient history when Addr is set, otherwise history stays in memory.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

type History struct {
	Window     int
	MinPeriods int
	MaxEntries int
	TTL        time.Duration
	Record     bool
}

// Kafka receives alert events when Brokers is set, otherwise alerts are logged.
type Kafka struct {
	Brokers []string
	Topic   string
}

type Alerts struct {
	Workers   int
	QueueSize int
}

type CORS struct {
	AllowedOrigins []string
}

func Default() Options {
	return Options{
		Server: Server{
			Address:      "0.0.0.0",
			Port:         5000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Artifacts: Artifacts{
			Dir:           "artifacts",
			PipelineFile:  "supervised_pipeline.json",
			ThresholdFile: "supervised_threshold.json",
			S3:            S3{UseSSL: true},
		},
		History: History{
			Window:     7,
			MinPeriods: 3,
			MaxEntries: 30,
			TTL:        30 * 24 * time.Hour,
			Record:     true,
		},
		Kafka: Kafka{
			Topic: "patient-alerts",
		},
		Alerts: Alerts{
			QueueSize: 10000,
		},
		CORS: CORS{
			AllowedOrigins: []string{"*"},
		},
	}
}

// BindFlags registers every option on fs, using the current values as defaults.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Server.Address, "server.address", o.Server.Address, "HTTP listen address")
	fs.IntVar(&o.Server.Port, "server.port", o.Server.Port, "HTTP listen port")
	fs.DurationVar(&o.Server.ReadTimeout, "server.read-timeout", o.Server.ReadTimeout, "HTTP read timeout")
	fs.DurationVar(&o.Server.WriteTimeout, "server.write-timeout", o.Server.WriteTimeout, "HTTP write timeout")
	fs.DurationVar(&o.Server.IdleTimeout, "server.idle-timeout", o.Server.IdleTimeout, "HTTP idle timeout")

	fs.StringVar(&o.Artifacts.Dir, "artifacts.dir", o.Artifacts.Dir, "Local directory holding model artifacts")
	fs.StringVar(&o.Artifacts.PipelineFile, "artifacts.pipeline-file", o.Artifacts.PipelineFile, "Pipeline artifact file name")
	fs.StringVar(&o.Artifacts.ThresholdFile, "artifacts.threshold-file", o.Artifacts.ThresholdFile, "Threshold artifact file name")
	fs.StringVar(&o.Artifacts.S3.Endpoint, "artifacts.s3.endpoint", o.Artifacts.S3.Endpoint, "S3-compatible endpoint (host:port)")
	fs.StringVar(&o.Artifacts.S3.Bucket, "artifacts.s3.bucket", o.Artifacts.S3.Bucket, "Bucket holding model artifacts (default: read from artifacts.dir)")
	fs.StringVar(&o.Artifacts.S3.Prefix, "artifacts.s3.prefix", o.Artifacts.S3.Prefix, "Object key prefix of model artifacts")
	fs.StringVar(&o.Artifacts.S3.AccessKey, "artifacts.s3.access-key", o.Artifacts.S3.AccessKey, "S3 access key")
	fs.StringVar(&o.Artifacts.S3.SecretKey, "artifacts.s3.secret-key", o.Artifacts.S3.SecretKey, "S3 secret key")
	fs.BoolVar(&o.Artifacts.S3.UseSSL, "artifacts.s3.use-ssl", o.Artifacts.S3.UseSSL, "Use TLS towards the S3 endpoint")

	fs.StringVar(&o.Redis.Addr, "redis.addr", o.Redis.Addr, "Redis address for patient history (default: in-memory history)")
	fs.StringVar(&o.Redis.Password, "redis.password", o.Redis.Password, "Redis password")
	fs.IntVar(&o.Redis.DB, "redis.db", o.Redis.DB, "Redis database")

	fs.IntVar(&o.History.Window, "history.window", o.History.Window, "Rolling window size in samples")
	fs.IntVar(&o.History.MinPeriods, "history.min-periods", o.History.MinPeriods, "Prior samples needed before rolling features replace the fallback")
	fs.IntVar(&o.History.MaxEntries, "history.max-entries", o.History.MaxEntries, "Samples kept per patient")
	fs.DurationVar(&o.History.TTL, "history.ttl", o.History.TTL, "Expiry of a patient's history after the last sample")
	fs.BoolVar(&o.History.Record, "history.record", o.History.Record, "Record scored samples into patient history")

	fs.StringSliceVar(&o.Kafka.Brokers, "kafka.brokers", o.Kafka.Brokers, "Kafka brokers for alert events (default: log alerts)")
	fs.StringVar(&o.Kafka.Topic, "kafka.topic", o.Kafka.Topic, "Kafka topic for alert events")

	fs.IntVar(&o.Alerts.Workers, "alerts.workers", o.Alerts.Workers, "Alert publishing workers (default: NumCPU*2, clamped to [4,16])")
	fs.IntVar(&o.Alerts.QueueSize, "alerts.queue-size", o.Alerts.QueueSize, "Pending alerts kept before new ones are dropped")

	fs.StringSliceVar(&o.CORS.AllowedOrigins, "cors.allowed-origins", o.CORS.AllowedOrigins, "Origins allowed by CORS")
}

// ApplyViper copies values found in v (config file or environment) onto flags
// the command line left unset. Dotted flag names map to PREFIX_SECTION_KEY
// environment variables.
func ApplyViper(fs *pflag.FlagSet, v *viper.Viper, envPrefix string) error {
	var firstErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if strings.Contains(f.Name, ".") {
			envVarSuffix := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(f.Name))
			_ = v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix))
		}
		if f.Changed || !v.IsSet(f.Name) {
			return
		}

		var value string
		switch val := v.Get(f.Name).(type) {
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprintf("%v", p))
			}
			value = strings.Join(parts, ",")
		case []string:
			value = strings.Join(val, ",")
		case bool, string, int, int32, int64, uint, uint32, uint64, float32, float64:
			value = fmt.Sprintf("%v", val)
		default:
			b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(val)
			if err != nil {
				firstErr = errors.Wrapf(err, "can't encode config value of %s", f.Name)
				return
			}
			value = string(b)
		}
		if err := fs.Set(f.Name, value); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "invalid value %q for %s", value, f.Name)
		}
	})
	return firstErr
}

func (o *Options) Validate() error {
	if o.Server.Port <= 0 || o.Server.Port > 65535 {
		return errors.Errorf("server.port %d out of range", o.Server.Port)
	}
	if o.History.Window <= 0 {
		return errors.New("history.window must be positive")
	}
	if o.History.MinPeriods <= 0 || o.History.MinPeriods > o.History.Window {
		return errors.Errorf("history.min-periods must be between 1 and history.window (%d)", o.History.Window)
	}
	if o.History.MaxEntries < o.History.Window {
		return errors.Errorf("history.max-entries must be at least history.window (%d)", o.History.Window)
	}
	if o.Artifacts.S3.Bucket != "" && o.Artifacts.S3.Endpoint == "" {
		return errors.New("artifacts.s3.endpoint is required when artifacts.s3.bucket is set")
	}
	if len(o.Kafka.Brokers) > 0 && o.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when kafka.brokers is set")
	}
	return nil
}

func (o *Options) ListenAddress() string {
	return net.JoinHostPort(o.Server.Address, strconv.Itoa(o.Server.Port))
}
