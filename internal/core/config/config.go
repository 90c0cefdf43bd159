package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type PVGISCfg struct {
	URL          string
	PeakPowerKWp float64
	Loss         float64
	Timeout      time.Duration
}

type FetchCfg struct {
	MaxConcurrency int
	MaxPerSecond   float64
	Retries        int
	RetryBase      time.Duration
}

type CacheCfg struct {
	Driver         string // file | redis
	Dir            string
	OpTimeout      time.Duration
	SummaryLRUSize int
}

type LocationIndexCfg struct {
	Enabled bool
	Res     int
}

type BlobCfg struct {
	Driver         string // none | minio | savedata
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	SaveDataURL    string
}

type EventsCfg struct {
	Enabled bool
	Topic   string
	Brokers []string
	// Warm consumes the topic to load grids persisted by other replicas.
	Warm    bool
	GroupID string
}

type Config struct {
	Addr            string
	LogLevel        string
	LogConsole      bool
	LogSampleN      int
	RedisAddr       string
	SimulationURL   string
	DefaultAzRes    int
	DefaultSlopeRes int
	PVGIS           PVGISCfg
	Fetch           FetchCfg
	Cache           CacheCfg
	LocationIndex   LocationIndexCfg
	Blob            BlobCfg
	Events          EventsCfg
}

func FromEnv() Config {
	idxRes := getint("LOCATION_INDEX_RES", 7)
	if idxRes < 0 || idxRes > 15 {
		idxRes = 7
	}

	return Config{
		Addr:            getenv("ADDR", ":8090"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		LogSampleN:      getint("LOG_SAMPLE_N", 0),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		SimulationURL:   getenv("SIMULATION_URL", "http://localhost:5001"),
		DefaultAzRes:    getint("DEFAULT_AZIMUTH_RES", 10),
		DefaultSlopeRes: getint("DEFAULT_SLOPE_RES", 10),
		PVGIS: PVGISCfg{
			URL:          getenv("PVGIS_URL", "https://re.jrc.ec.europa.eu/api/v5_2"),
			PeakPowerKWp: getfloat("PVGIS_PEAK_POWER_KWP", 1.0),
			Loss:         getfloat("PVGIS_LOSS", 14),
			Timeout:      getduration("PVGIS_TIMEOUT", 60*time.Second),
		},
		Fetch: FetchCfg{
			MaxConcurrency: getint("FETCH_MAX_CONCURRENCY", 30),
			MaxPerSecond:   getfloat("FETCH_MAX_PER_SECOND", 30),
			Retries:        getint("FETCH_RETRIES", 3),
			RetryBase:      getduration("FETCH_RETRY_BASE", 500*time.Millisecond),
		},
		Cache: CacheCfg{
			Driver:         strings.ToLower(getenv("CACHE_DRIVER", "file")),
			Dir:            getenv("CACHE_DIR", "./data/grids"),
			OpTimeout:      getduration("CACHE_OP_TIMEOUT", 5*time.Second),
			SummaryLRUSize: getint("SUMMARY_LRU_SIZE", 256),
		},
		LocationIndex: LocationIndexCfg{
			Enabled: getbool("LOCATION_INDEX_ENABLED", false),
			Res:     idxRes,
		},
		Blob: BlobCfg{
			Driver:         strings.ToLower(getenv("BLOB_DRIVER", "none")),
			MinioEndpoint:  getenv("MINIO_ENDPOINT", "localhost:9000"),
			MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
			MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
			MinioBucket:    getenv("MINIO_BUCKET", "pvgrids"),
			MinioUseSSL:    getbool("MINIO_USE_SSL", false),
			SaveDataURL:    getenv("SAVEDATA_URL", "http://localhost:5000"),
		},
		Events: EventsCfg{
			Enabled: getbool("GRID_EVENTS_ENABLED", false),
			Topic:   getenv("GRID_EVENTS_TOPIC", "pvgrid-ready"),
			Brokers: getlist("KAFKA_BROKERS", []string{"localhost:9092"}),
			Warm:    getbool("GRID_EVENTS_WARM", false),
			GroupID: getenv("GRID_EVENTS_GROUP_ID", "pvgrid-warm"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "a:9092, b:9092" into a list, dropping blanks
func getlist(k string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	var out []string
	for p := range strings.SplitSeq(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
