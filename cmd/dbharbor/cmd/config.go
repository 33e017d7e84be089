package cmd

import (
	"reflect"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
)

type CLIConfig struct {
	Connection ConnectionConfig `mapstructure:"connection"`
	Query      QueryConfig      `mapstructure:"query"`
	Export     ExportConfig     `mapstructure:"export"`
	Log        LogConfig        `mapstructure:"log"`
}

type ConnectionConfig struct {
	Engine           string            `mapstructure:"engine"`
	Host             string            `mapstructure:"host"`
	Port             int               `mapstructure:"port"`
	User             string            `mapstructure:"user"`
	Password         string            `mapstructure:"password"`
	Database         string            `mapstructure:"database"`
	Params           map[string]string `mapstructure:"params"`
	MaxOpenConns     int               `mapstructure:"max_open_conns"`
	ConnectTimeout   time.Duration     `mapstructure:"connect_timeout"`
	StatementTimeout time.Duration     `mapstructure:"statement_timeout"`
}

type QueryConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

type ExportConfig struct {
	Dir      string   `mapstructure:"dir"`
	S3URL    string   `mapstructure:"s3_url"`
	Gzip     bool     `mapstructure:"gzip"`
	Pgzip    bool     `mapstructure:"pgzip"`
	MaxRows  int      `mapstructure:"max_rows"`
	MaxBytes ByteSize `mapstructure:"max_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ByteSize accepts plain numbers or sizes such as "64MB" in config files
// and the environment.
type ByteSize int64

func NewConfig() *CLIConfig {
	return &CLIConfig{
		Connection: ConnectionConfig{
			ConnectTimeout: 10 * time.Second,
		},
		Query: QueryConfig{
			MaxRows: 10000,
		},
		Export: ExportConfig{
			Dir: ".",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func byteSizeHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != reflect.TypeOf(ByteSize(0)) || f.Kind() != reflect.String {
			return data, nil
		}
		s := data.(string)
		if s == "" {
			return ByteSize(0), nil
		}
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return nil, err
		}
		return ByteSize(n), nil
	}
}
