package config

// Config 是 FailLog 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Host      HostConfig      `toml:"host"`
	Detection DetectionConfig `toml:"detection"`
	Actions   ActionsConfig   `toml:"actions"`
	Server    ServerConfig    `toml:"server"`
	Email     EmailConfig     `toml:"email"`
	Version   VersionConfig   `toml:"version"`
	Names     NamesConfig     `toml:"names"`
	Journal   JournalConfig   `toml:"journal"`
	Vars      VarsConfig      `toml:"vars"`
	Stream    StreamConfig    `toml:"stream"`
	Notify    NotifyConfig    `toml:"notify"`
	HTTP      HTTPConfig      `toml:"http"`
}

type AppConfig struct {
	Env        string `toml:"env"`
	LogLevel   string `toml:"log_level"`
	LogPath    string `toml:"log_path"`
	DebugLevel int    `toml:"debug_level"`
}

// HostConfig 描述被监控的游戏服务器及其管理端（命令下发地址）。
type HostConfig struct {
	Hostname   string `toml:"hostname"`
	Port       string `toml:"port"`
	CommandURL string `toml:"command_url"`
	TimeoutSec int    `toml:"timeout_seconds"`
}

// DetectionConfig holds the classifier thresholds.
type DetectionConfig struct {
	BlazePercent      float64 `toml:"blaze_percent"`
	WindowSeconds     float64 `toml:"window_seconds"`
	CongestionSeconds float64 `toml:"congestion_seconds"`
}

type ActionsConfig struct {
	EnableLogToFile      bool   `toml:"enable_log_to_file"`
	LogDir               string `toml:"log_dir"`
	LogFile              string `toml:"log_file"`
	EnableWebLog         bool   `toml:"enable_web_log"`
	BeaconURL            string `toml:"beacon_url"`
	EnableRestartOnBlaze bool   `toml:"enable_restart_on_blaze"`
	RestartDelaySeconds  int    `toml:"restart_delay_seconds"`
	EnableEmailOnBlaze   bool   `toml:"enable_email_on_blaze"`
	Workers              int    `toml:"workers"`
	QueueSize            int    `toml:"queue_size"`
}

// ServerConfig 是运营者填写的服务器描述信息（写入日志 Details 字段）。
type ServerConfig struct {
	GameServerType         string `toml:"game_server_type"`
	RankedServerProvider   string `toml:"ranked_server_provider"`
	ServerOwnerOrCommunity string `toml:"server_owner_or_community"`
	ContactInfo            string `toml:"contact_info"`
	ServerRegion           string `toml:"server_region"`
	BattlelogLink          string `toml:"battlelog_link"`
	AdditionalInformation  string `toml:"additional_information"`
}

type EmailConfig struct {
	Recipients   []string `toml:"recipients"`
	Sender       string   `toml:"sender"`
	Subject      string   `toml:"subject"`
	Message      []string `toml:"message"`
	SMTPHostname string   `toml:"smtp_hostname"`
	SMTPPort     int      `toml:"smtp_port"`
	SMTPUseSSL   bool     `toml:"smtp_use_ssl"`
	SMTPUsername string   `toml:"smtp_username"`
	SMTPPassword string   `toml:"smtp_password"`
}

// VersionConfig 控制插件更新检查。
type VersionConfig struct {
	Enabled       bool   `toml:"enabled"`
	Current       string `toml:"current"`
	ReportURL     string `toml:"report_url"`
	IntervalHours int    `toml:"interval_hours"`
	MinUsage      int    `toml:"min_usage"`
}

type NamesConfig struct {
	Path string `toml:"path"`
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type VarsConfig struct {
	Persist bool   `toml:"persist"`
	Path    string `toml:"path"`
}

type StreamConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Key      string `toml:"key"`
	MaxLen   int64  `toml:"max_len"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// HTTPConfig 控制状态接口与宿主事件入口。
type HTTPConfig struct {
	Addr       string  `toml:"addr"`
	AuthSecret string  `toml:"auth_secret"`
	RatePerSec float64 `toml:"rate_per_sec"`
	RateBurst  int     `toml:"rate_burst"`
}
