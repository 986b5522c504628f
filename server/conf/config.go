package conf

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zhukovaskychina/gtid-ledger/logger"

	"gopkg.in/ini.v1"
)

var ConfigPath string

type CommandLineArgs struct {
	ConfigPath string
}

/*
*
user		= mysql
basedir		= /usr
datadir		= /var/lib/mysql
*/
type Cfg struct {
	Raw         *ini.File
	User        string
	BindAddress string
	Port        int
	BaseDir     string
	DataDir     string
	AppName     string

	// session
	SessionTimeout         string `default:"60s" yaml:"session_timeout" json:"session_timeout,omitempty"`
	SessionTimeoutDuration time.Duration
	SessionNumber          int `default:"1000" yaml:"session_number" json:"session_number,omitempty"`

	// app
	FailFastTimeout         string `default:"5s" yaml:"fail_fast_timeout" json:"fail_fast_timeout,omitempty"`
	FailFastTimeoutDuration time.Duration

	// logs
	LogError string `default:"/var/log/mysql/error.log" yaml:"log_error" json:"log_error,omitempty"`
	LogInfos string `default:"/var/log/mysql/mysql.log" yaml:"log_infos" json:"log_infos,omitempty"`
	LogLevel string `default:"info" yaml:"log_level" json:"log_level,omitempty"`

	// replication / gtid ledger
	GtidCompressionPeriod int    `default:"1000" yaml:"gtid_compression_period" json:"gtid_compression_period,omitempty"`
	GtidDSN               string `default:"" yaml:"gtid_dsn" json:"gtid_dsn,omitempty"`
	GtidTableName         string `default:"mysql.gtid_executed" yaml:"gtid_table_name" json:"gtid_table_name,omitempty"`
}

func NewCfg() *Cfg {
	return &Cfg{
		Raw:         ini.Empty(),
		User:        "mysql",
		BindAddress: "127.0.0.1",
		Port:        3308,
		DataDir:     "data",
		// Logs 默认配置
		LogError: "/var/log/mysql/error.log",
		LogInfos: "/var/log/mysql/mysql.log",
		LogLevel: "info",
		// replication 默认配置
		GtidCompressionPeriod: 1000,
		GtidTableName:         "mysql.gtid_executed",
	}
}

func (cfg *Cfg) Load(args *CommandLineArgs) *Cfg {
	setHomePath(args)
	iniFile, err := cfg.loadConfiguration(args)
	if err != nil {
		logger.Debugf("加载配置文件时有异常: %v\n", err)
		os.Exit(1)
	}
	cfg.Raw = iniFile

	cfg.parseMysqldCfg(cfg.Raw.Section("mysqld"))
	cfg.parseLogsCfg(cfg.Raw.Section("logs"))
	cfg.parseReplicationCfg(cfg.Raw.Section("replication"))
	return cfg
}

func setHomePath(args *CommandLineArgs) {
	if args.ConfigPath != "" {
		ConfigPath = args.ConfigPath
		return
	}

	ConfigPath, _ = filepath.Abs(".")
}

func (cfg *Cfg) parseMysqldCfg(section *ini.Section) *Cfg {
	if section == nil {
		return cfg
	}

	bindAddress, err := valueAsString(section, "bind-address", cfg.BindAddress)
	if err == nil && bindAddress != "" {
		if ip := net.ParseIP(bindAddress); ip != nil {
			cfg.BindAddress = bindAddress
		} else {
			logger.Warnf("忽略无效的 bind-address: %q", bindAddress)
		}
	}

	cfg.Port = section.Key("port").MustInt(cfg.Port)

	baseDir, err := valueAsString(section, "basedir", cfg.BaseDir)
	if err == nil {
		cfg.BaseDir = baseDir
	}
	dataDir, err := valueAsString(section, "datadir", cfg.DataDir)
	if err == nil {
		cfg.DataDir = dataDir
	}

	cfg.SessionNumber = section.Key("max_session_number").MustInt(cfg.SessionNumber)

	sessionTimeout, err := valueAsString(section, "session_timeout", cfg.SessionTimeout)
	if err == nil && sessionTimeout != "" {
		cfg.SessionTimeout = sessionTimeout
		if d, perr := time.ParseDuration(sessionTimeout); perr == nil {
			cfg.SessionTimeoutDuration = d
		} else {
			logger.Warnf("忽略无效的 session_timeout %q: %v", sessionTimeout, perr)
		}
	}

	failFastTimeout, err := valueAsString(section, "fail_fast_timeout", cfg.FailFastTimeout)
	if err == nil && failFastTimeout != "" {
		cfg.FailFastTimeout = failFastTimeout
		if d, perr := time.ParseDuration(failFastTimeout); perr == nil {
			cfg.FailFastTimeoutDuration = d
		} else {
			logger.Warnf("忽略无效的 fail_fast_timeout %q: %v", failFastTimeout, perr)
		}
	}

	return cfg
}

// parseReplicationCfg reads the gtid ledger's settings: the
// append-count threshold that rate-triggers a compaction signal, the
// DSN of the SQL-backed ledger table, and that table's name.
func (cfg *Cfg) parseReplicationCfg(section *ini.Section) *Cfg {
	if section == nil {
		return cfg
	}
	cfg.GtidCompressionPeriod = section.Key("gtid_compression_period").MustInt(cfg.GtidCompressionPeriod)

	dsn, err := valueAsString(section, "gtid_dsn", cfg.GtidDSN)
	if err == nil {
		cfg.GtidDSN = dsn
	}
	tableName, err := valueAsString(section, "gtid_table_name", cfg.GtidTableName)
	if err == nil && tableName != "" {
		cfg.GtidTableName = tableName
	}
	return cfg
}

func (cfg *Cfg) parseLogsCfg(section *ini.Section) *Cfg {
	if section == nil {
		return cfg
	}

	logError, err := valueAsString(section, "log_error", cfg.LogError)
	if err == nil {
		cfg.LogError = logError
	}

	logInfos, err := valueAsString(section, "log_infos", cfg.LogInfos)
	if err == nil {
		cfg.LogInfos = logInfos
	}

	logLevel, err := valueAsString(section, "log_level", cfg.LogLevel)
	if err == nil {
		logLevel = strings.ToLower(logLevel)
		validLevels := []string{"debug", "info", "warn", "error", "fatal", "panic"}
		isValid := false
		for _, level := range validLevels {
			if logLevel == level {
				isValid = true
				break
			}
		}
		if isValid {
			cfg.LogLevel = logLevel
		} else {
			logger.Debugf("警告: 无效的日志级别 '%s', 使用默认级别 'info'\n", logLevel)
			cfg.LogLevel = "info"
		}
	}

	return cfg
}

func (cfg *Cfg) loadConfiguration(args *CommandLineArgs) (*ini.File, error) {
	configFile := "conf/my.ini"
	if args.ConfigPath != "" {
		configFile = args.ConfigPath
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		logger.Debugf("配置文件不存在: %s，使用默认配置\n", configFile)
		return ini.Empty(), nil
	}

	parsedFile, err := ini.Load(configFile)
	if err != nil {
		logger.Debugf("解析配置文件失败: %v，使用默认配置\n", err)
		return ini.Empty(), nil
	}

	logger.Debugf("成功加载配置文件: %s\n", configFile)
	return parsedFile, nil
}

func valueAsString(section *ini.Section, keyName string, defaultValue string) (value string, err error) {
	if section == nil {
		return defaultValue, nil
	}
	value = section.Key(keyName).MustString(defaultValue)
	if value == "" {
		value = defaultValue
	}
	return value, nil
}

// GetString 获取配置项的字符串值
func (cfg *Cfg) GetString(key string) string {
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return ""
	}

	section := cfg.Raw.Section(parts[0])
	if section == nil {
		return ""
	}

	value, err := valueAsString(section, strings.Join(parts[1:], "."), "")
	if err != nil {
		return ""
	}
	return value
}

// GetInt 获取配置项的整数值
func (cfg *Cfg) GetInt(key string) int {
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return 0
	}

	section := cfg.Raw.Section(parts[0])
	if section == nil {
		return 0
	}

	return section.Key(strings.Join(parts[1:], ".")).MustInt(0)
}
