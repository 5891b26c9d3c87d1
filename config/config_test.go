package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet(opts *Options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.BindFlags(fs)
	return fs
}

func TestDefaults(t *testing.T) {
	opts := Default()
	require.NoError(t, opts.Validate())

	assert.Equal(t, "0.0.0.0:5000", opts.ListenAddress())
	assert.Equal(t, 7, opts.History.Window)
	assert.Equal(t, 3, opts.History.MinPeriods)
	assert.Equal(t, "supervised_pipeline.json", opts.Artifacts.PipelineFile)
	assert.Equal(t, "supervised_threshold.json", opts.Artifacts.ThresholdFile)
	assert.Empty(t, opts.Redis.Addr)
	assert.Empty(t, opts.Kafka.Brokers)
}

func TestFlagsOverrideDefaults(t *testing.T) {
	opts := Default()
	fs := newFlagSet(&opts)

	require.NoError(t, fs.Parse([]string{
		"--server.port=8081",
		"--redis.addr=redis:6379",
		"--history.ttl=48h",
		"--kafka.brokers=k1:9092,k2:9092",
	}))

	assert.Equal(t, 8081, opts.Server.Port)
	assert.Equal(t, "redis:6379", opts.Redis.Addr)
	assert.Equal(t, 48*time.Hour, opts.History.TTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, opts.Kafka.Brokers)
}

func TestApplyViperFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
server:
  port: 9000
history:
  min-periods: 2
kafka:
  brokers: [broker-a:9092, broker-b:9092]
artifacts:
  dir: /models
`), 0o600))
	t.Setenv("HEALTH_ALERT_REDIS_ADDR", "cache:6379")

	opts := Default()
	fs := newFlagSet(&opts)
	require.NoError(t, fs.Parse([]string{"--artifacts.dir=/override"}))

	v := viper.New()
	v.SetConfigFile(cfgFile)
	require.NoError(t, v.ReadInConfig())
	require.NoError(t, ApplyViper(fs, v, EnvPrefix))

	assert.Equal(t, 9000, opts.Server.Port)
	assert.Equal(t, 2, opts.History.MinPeriods)
	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, opts.Kafka.Brokers)
	assert.Equal(t, "cache:6379", opts.Redis.Addr)
	// command line wins over the file
	assert.Equal(t, "/override", opts.Artifacts.Dir)
}

func TestApplyViperInvalidValue(t *testing.T) {
	opts := Default()
	fs := newFlagSet(&opts)

	v := viper.New()
	v.Set("server.port", "not-a-port")
	err := ApplyViper(fs, v, EnvPrefix)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(o *Options){
		"port":        func(o *Options) { o.Server.Port = 0 },
		"window":      func(o *Options) { o.History.Window = 0 },
		"min periods": func(o *Options) { o.History.MinPeriods = 8 },
		"max entries": func(o *Options) { o.History.MaxEntries = 3 },
		"s3 endpoint": func(o *Options) { o.Artifacts.S3.Bucket = "models" },
		"kafka topic": func(o *Options) { o.Kafka = Kafka{Brokers: []string{"k:9092"}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := Default()
			mutate(&opts)
			assert.Error(t, opts.Validate())
		})
	}
}
