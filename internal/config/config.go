package config

import (
	"flag"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Token provider modes
const (
	TokenModeJWT  = "jwt"
	TokenModeGRPC = "grpc"
)

// Config holds the softphone daemon configuration
type Config struct {
	// SIP settings
	Port          int
	BindAddr      string
	AdvertiseAddr string // Address to advertise in SIP headers and SDP
	Proxy         string // Outbound proxy / provider address (host[:port])
	Domain        string // Host part of the From URI
	UserAgent     string
	DialTimeout   time.Duration

	// Media settings
	RTPPortMin   int
	RTPPortMax   int
	MediaTimeout time.Duration // RTP silence before a call is reported as reconnecting

	// Local state
	DataDir     string
	PrefsPath   string
	NumbersDB   string
	RecordQueue int

	// Token provider
	TokenMode             string
	TokenServer           string
	TokenTTL              time.Duration
	GRPCConnectTimeout    time.Duration
	GRPCKeepaliveInterval time.Duration
	GRPCKeepaliveTimeout  time.Duration

	// Control API
	APIAddr string

	// Event fan-out
	RedisAddr string

	WakeLockTimeout time.Duration

	LogLevel string
	LogFile  string
}

// Load loads configuration from a .env file, command line flags and
// environment variables, in increasing order of precedence.
func Load() *Config {
	_ = godotenv.Load()
	return parse(flag.CommandLine, os.Args[1:], os.Getenv)
}

func parse(fs *flag.FlagSet, args []string, getenv func(string) string) *Config {
	cfg := &Config{
		GRPCConnectTimeout:    10 * time.Second,
		GRPCKeepaliveInterval: 30 * time.Second,
		GRPCKeepaliveTimeout:  10 * time.Second,
		WakeLockTimeout:       10 * time.Minute,
	}

	fs.IntVar(&cfg.Port, "port", 5060, "SIP listening port")
	fs.StringVar(&cfg.BindAddr, "bind", "0.0.0.0", "SIP bind address")
	fs.StringVar(&cfg.AdvertiseAddr, "advertise", "", "Address to advertise in SIP headers (auto-detected if not set)")
	fs.StringVar(&cfg.Proxy, "proxy", "", "SIP provider address (host[:port]) that receives outbound INVITEs")
	fs.StringVar(&cfg.Domain, "domain", "", "SIP domain used in the From URI (defaults to the advertise address)")
	fs.StringVar(&cfg.UserAgent, "useragent", "softphone", "SIP User-Agent name")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", 60*time.Second, "Time to wait for an answer")
	fs.IntVar(&cfg.RTPPortMin, "rtp-min", 10000, "Lowest RTP port")
	fs.IntVar(&cfg.RTPPortMax, "rtp-max", 10100, "Highest RTP port")
	fs.DurationVar(&cfg.MediaTimeout, "media-timeout", 5*time.Second, "RTP silence before reporting reconnecting")
	fs.StringVar(&cfg.DataDir, "data", "data", "Directory for preferences, identity store and recordings")
	fs.StringVar(&cfg.PrefsPath, "prefs", "", "Preferences file (defaults to <data>/prefs.yaml)")
	fs.StringVar(&cfg.NumbersDB, "numbers-db", "", "Phone number store (defaults to <data>/numbers.db)")
	fs.IntVar(&cfg.RecordQueue, "record-queue", 256, "Audio buffers queued per recording before dropping")
	fs.StringVar(&cfg.TokenMode, "token-mode", TokenModeJWT, "Token provider (jwt, grpc)")
	fs.StringVar(&cfg.TokenServer, "token-server", "localhost:9090", "Token server gRPC address (token-mode=grpc)")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", time.Hour, "Lifetime of locally issued access tokens")
	fs.StringVar(&cfg.APIAddr, "api", "127.0.0.1:8080", "Control API listen address")
	fs.StringVar(&cfg.RedisAddr, "redis", "", "Redis address for call event fan-out (disabled if empty)")
	fs.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "logfile", "", "Rotating log file (stdout only if empty)")

	_ = fs.Parse(args)

	if port := getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if bind := getenv("BIND"); bind != "" {
		cfg.BindAddr = bind
	}
	if advertise := getenv("ADVERTISE"); advertise != "" {
		cfg.AdvertiseAddr = advertise
	}
	if cfg.AdvertiseAddr == "" || !isValidAddress(cfg.AdvertiseAddr) {
		cfg.AdvertiseAddr = getPrimaryInterfaceIP()
	}
	if proxy := getenv("SIP_PROXY"); proxy != "" {
		cfg.Proxy = proxy
	}
	if domain := getenv("SIP_DOMAIN"); domain != "" {
		cfg.Domain = domain
	}
	if cfg.Domain == "" {
		cfg.Domain = cfg.AdvertiseAddr
	}
	if dataDir := getenv("DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if cfg.PrefsPath == "" {
		cfg.PrefsPath = filepath.Join(cfg.DataDir, "prefs.yaml")
	}
	if cfg.NumbersDB == "" {
		cfg.NumbersDB = filepath.Join(cfg.DataDir, "numbers.db")
	}
	if mode := getenv("TOKEN_MODE"); mode != "" {
		cfg.TokenMode = strings.ToLower(mode)
	}
	if server := getenv("TOKEN_SERVER"); server != "" {
		cfg.TokenServer = server
	}
	if api := getenv("API_ADDR"); api != "" {
		cfg.APIAddr = api
	}
	if redis := getenv("REDIS_ADDR"); redis != "" {
		cfg.RedisAddr = redis
	}
	if loglevel := getenv("LOGLEVEL"); loglevel != "" {
		cfg.LogLevel = loglevel
	}
	if logfile := getenv("LOGFILE"); logfile != "" {
		cfg.LogFile = logfile
	}

	return cfg
}

// RecordingsDir is the default recording directory when the user has not
// chosen one.
func (c *Config) RecordingsDir() string {
	return filepath.Join(c.DataDir, "call_recordings")
}

// TokenServerConfig holds the token server configuration
type TokenServerConfig struct {
	Port       int
	BindAddr   string
	AccountSID string
	AuthToken  string
	TTL        time.Duration
	LogLevel   string
}

// LoadTokenServer loads the token server configuration.
func LoadTokenServer() *TokenServerConfig {
	_ = godotenv.Load()
	return parseTokenServer(flag.CommandLine, os.Args[1:], os.Getenv)
}

func parseTokenServer(fs *flag.FlagSet, args []string, getenv func(string) string) *TokenServerConfig {
	cfg := &TokenServerConfig{}

	fs.IntVar(&cfg.Port, "port", 9090, "gRPC listening port")
	fs.StringVar(&cfg.BindAddr, "bind", "0.0.0.0", "gRPC bind address")
	fs.DurationVar(&cfg.TTL, "ttl", time.Hour, "Issued token lifetime")
	fs.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level (debug, info, warn, error)")

	_ = fs.Parse(args)

	if port := getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if bind := getenv("BIND"); bind != "" {
		cfg.BindAddr = bind
	}
	cfg.AccountSID = getenv("ACCOUNT_SID")
	cfg.AuthToken = getenv("AUTH_TOKEN")
	if loglevel := getenv("LOGLEVEL"); loglevel != "" {
		cfg.LogLevel = loglevel
	}

	return cfg
}

// isValidAddress checks if the address is a valid IP or resolvable hostname
func isValidAddress(addr string) bool {
	if ip := net.ParseIP(addr); ip != nil {
		return true
	}
	if ips, err := net.LookupIP(addr); err == nil && len(ips) > 0 {
		return true
	}
	return false
}

// getPrimaryInterfaceIP returns the first IPv4 address of an up, non-loopback interface
func getPrimaryInterfaceIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}

	return "127.0.0.1"
}
