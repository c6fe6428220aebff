package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"faillog/internal/logger"

	"github.com/tidwall/gjson"
)

const (
	SectionSettings    = "1 - Settings"
	SectionDescription = "2 - Server Description"
	SectionEmail       = "3 - Email Settings"
)

// SettingKind is the display type of a plugin variable.
type SettingKind string

const (
	KindInt         SettingKind = "int"
	KindFloat       SettingKind = "double"
	KindBool        SettingKind = "bool"
	KindString      SettingKind = "string"
	KindStringArray SettingKind = "string[]"
)

// Variable 是对外展示的一条插件变量。
type Variable struct {
	Name  string      `json:"name"`
	Kind  SettingKind `json:"type"`
	Value any         `json:"value"`
}

type setting struct {
	section  string
	label    string
	kind     SettingKind
	get      func(*Config) any
	set      func(*Config, string) error
	visible  func(*Config) bool
	validate func(*Config) bool
	secret   bool
}

// RedactedValue replaces a non-empty secret in variable listings.
const RedactedValue = "********"

func (s setting) name() string {
	return s.section + "|" + s.label
}

func (s setting) variable(c *Config) Variable {
	v := s.get(c)
	if s.secret {
		if str, _ := v.(string); str != "" {
			v = RedactedValue
		}
	}
	return Variable{Name: s.name(), Kind: s.kind, Value: v}
}

var propertyNameRe = regexp.MustCompile(`[^a-zA-Z_0-9]`)

func propertyName(label string) string {
	return propertyNameRe.ReplaceAllString(label, "")
}

// settingTable 是字符串键到类型化字段的静态映射。
var settingTable = []setting{
	{
		section: SectionSettings, label: "Debug Level", kind: KindInt,
		get: func(c *Config) any { return c.App.DebugLevel },
		set: intSetter(func(c *Config) *int { return &c.App.DebugLevel }),
		validate: func(c *Config) bool {
			return clampIntRange(&c.App.DebugLevel, "Debug Level", logger.MinDebugLevel, logger.MaxDebugLevel, DefaultDebugLevel)
		},
	},
	{
		section: SectionSettings, label: "Enable Log To File", kind: KindBool,
		get: func(c *Config) any { return c.Actions.EnableLogToFile },
		set: boolSetter(func(c *Config) *bool { return &c.Actions.EnableLogToFile }),
	},
	{
		section: SectionSettings, label: "Log File", kind: KindString,
		get:     func(c *Config) any { return c.Actions.LogFile },
		set:     stringSetter(func(c *Config) *string { return &c.Actions.LogFile }),
		visible: func(c *Config) bool { return c.Actions.EnableLogToFile },
		validate: func(c *Config) bool {
			return confineLogFile(&c.Actions.LogFile)
		},
	},
	{
		section: SectionSettings, label: "Enable Web Log", kind: KindBool,
		get: func(c *Config) any { return c.Actions.EnableWebLog },
		set: boolSetter(func(c *Config) *bool { return &c.Actions.EnableWebLog }),
	},
	{
		section: SectionSettings, label: "Blaze Disconnect Heuristic Percent", kind: KindFloat,
		get: func(c *Config) any { return c.Detection.BlazePercent },
		set: floatSetter(func(c *Config) *float64 { return &c.Detection.BlazePercent }),
		validate: func(c *Config) bool {
			return clampFloatRange(&c.Detection.BlazePercent, "Blaze Disconnect Heuristic Percent", minBlazePercent, maxBlazePercent, DefaultBlazePercent)
		},
	},
	{
		section: SectionSettings, label: "Blaze Disconnect Window Seconds", kind: KindFloat,
		get: func(c *Config) any { return c.Detection.WindowSeconds },
		set: floatSetter(func(c *Config) *float64 { return &c.Detection.WindowSeconds }),
		validate: func(c *Config) bool {
			return clampFloatRange(&c.Detection.WindowSeconds, "Blaze Disconnect Window Seconds", minWindowSeconds, maxWindowSeconds, DefaultWindowSeconds)
		},
	},
	{
		section: SectionSettings, label: "Enable Restart On Blaze", kind: KindBool,
		get: func(c *Config) any { return c.Actions.EnableRestartOnBlaze },
		set: boolSetter(func(c *Config) *bool { return &c.Actions.EnableRestartOnBlaze }),
	},
	{
		section: SectionSettings, label: "Restart On Blaze Delay", kind: KindInt,
		get:     func(c *Config) any { return c.Actions.RestartDelaySeconds },
		set:     intSetter(func(c *Config) *int { return &c.Actions.RestartDelaySeconds }),
		visible: func(c *Config) bool { return c.Actions.EnableRestartOnBlaze },
		validate: func(c *Config) bool {
			return clampNonNegative(&c.Actions.RestartDelaySeconds, "Restart On Blaze Delay", 0)
		},
	},
	{
		section: SectionSettings, label: "Enable Email On Blaze", kind: KindBool,
		get: func(c *Config) any { return c.Actions.EnableEmailOnBlaze },
		set: boolSetter(func(c *Config) *bool { return &c.Actions.EnableEmailOnBlaze }),
	},

	descriptionSetting("Game Server Type", func(c *Config) *string { return &c.Server.GameServerType }),
	descriptionSetting("Ranked Server Provider", func(c *Config) *string { return &c.Server.RankedServerProvider }),
	descriptionSetting("Server Owner Or Community", func(c *Config) *string { return &c.Server.ServerOwnerOrCommunity }),
	descriptionSetting("Contact Info", func(c *Config) *string { return &c.Server.ContactInfo }),
	descriptionSetting("Server Region", func(c *Config) *string { return &c.Server.ServerRegion }),
	descriptionSetting("Battlelog Link", func(c *Config) *string { return &c.Server.BattlelogLink }),
	descriptionSetting("Additional Information", func(c *Config) *string { return &c.Server.AdditionalInformation }),

	emailSetting("Email Recipients", KindStringArray,
		func(c *Config) any { return append([]string(nil), c.Email.Recipients...) },
		arraySetter(func(c *Config) *[]string { return &c.Email.Recipients })),
	emailSetting("Email Sender", KindString,
		func(c *Config) any { return c.Email.Sender },
		stringSetter(func(c *Config) *string { return &c.Email.Sender })),
	emailSetting("Email Subject", KindString,
		func(c *Config) any { return c.Email.Subject },
		stringSetter(func(c *Config) *string { return &c.Email.Subject })),
	emailSetting("Email Message", KindStringArray,
		func(c *Config) any { return append([]string(nil), c.Email.Message...) },
		arraySetter(func(c *Config) *[]string { return &c.Email.Message })),
	emailSetting("SMTP Hostname", KindString,
		func(c *Config) any { return c.Email.SMTPHostname },
		stringSetter(func(c *Config) *string { return &c.Email.SMTPHostname })),
	{
		section: SectionEmail, label: "SMTP Port", kind: KindInt,
		get:     func(c *Config) any { return c.Email.SMTPPort },
		set:     intSetter(func(c *Config) *int { return &c.Email.SMTPPort }),
		visible: emailVisible,
		validate: func(c *Config) bool {
			return clampIntRange(&c.Email.SMTPPort, "SMTP Port", minSMTPPort, maxSMTPPort, DefaultSMTPPort)
		},
	},
	emailSetting("SMTP Use SSL", KindBool,
		func(c *Config) any { return c.Email.SMTPUseSSL },
		boolSetter(func(c *Config) *bool { return &c.Email.SMTPUseSSL })),
	emailSetting("SMTP Username", KindString,
		func(c *Config) any { return c.Email.SMTPUsername },
		stringSetter(func(c *Config) *string { return &c.Email.SMTPUsername })),
	{
		section: SectionEmail, label: "SMTP Password", kind: KindString,
		get:     func(c *Config) any { return c.Email.SMTPPassword },
		set:     stringSetter(func(c *Config) *string { return &c.Email.SMTPPassword }),
		visible: emailVisible,
		secret:  true,
	},
}

var settingIndex = func() map[string]int {
	idx := make(map[string]int, len(settingTable))
	for i, s := range settingTable {
		idx[propertyName(s.label)] = i
	}
	return idx
}()

func emailVisible(c *Config) bool { return c.Actions.EnableEmailOnBlaze }

func descriptionSetting(label string, field func(*Config) *string) setting {
	return setting{
		section: SectionDescription, label: label, kind: KindString,
		get: func(c *Config) any { return *field(c) },
		set: stringSetter(field),
	}
}

func emailSetting(label string, kind SettingKind, get func(*Config) any, set func(*Config, string) error) setting {
	return setting{section: SectionEmail, label: label, kind: kind, get: get, set: set, visible: emailVisible}
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, raw string) error {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatSetter(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, raw string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

// boolSetter 与原插件一致：值中包含 "true"（忽略大小写）即为 true。
func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, raw string) error {
		*field(c) = strings.Contains(strings.ToLower(raw), "true")
		return nil
	}
}

func stringSetter(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, raw string) error {
		*field(c) = raw
		return nil
	}
}

func arraySetter(field func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, raw string) error {
		*field(c) = DecodeStringArray(raw)
		return nil
	}
}

// DecodeStringArray accepts either a JSON string array or a '|' separated list.
func DecodeStringArray(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") && gjson.Valid(trimmed) {
		var out []string
		gjson.Parse(trimmed).ForEach(func(_, v gjson.Result) bool {
			out = append(out, v.String())
			return true
		})
		return out
	}
	return strings.Split(raw, "|")
}

// SetVariable 按插件变量名（可带 "分区|" 前缀）写入配置，写入后对该项做范围修正。
func (c *Config) SetVariable(name, value string) error {
	if c == nil {
		return fmt.Errorf("nil config")
	}
	label := name
	if idx := strings.IndexByte(name, '|'); idx >= 0 {
		label = name[idx+1:]
	}
	i, ok := settingIndex[propertyName(label)]
	if !ok {
		return fmt.Errorf("unknown variable %q", name)
	}
	s := settingTable[i]
	logger.Tracef(6, "%s <- %s", s.label, value)
	err := s.set(c, value)
	if s.validate != nil {
		s.validate(c)
	}
	if err != nil {
		return fmt.Errorf("variable %q: %w", s.label, err)
	}
	return nil
}

// Variable returns the current value of a plugin variable.
func (c *Config) Variable(name string) (Variable, bool) {
	label := name
	if idx := strings.IndexByte(name, '|'); idx >= 0 {
		label = name[idx+1:]
	}
	i, ok := settingIndex[propertyName(label)]
	if !ok {
		return Variable{}, false
	}
	return settingTable[i].variable(c), true
}

// Variables 返回当前可见的插件变量（与原插件的条件显示规则一致）。
func (c *Config) Variables() []Variable {
	out := make([]Variable, 0, len(settingTable))
	for _, s := range settingTable {
		if s.visible != nil && !s.visible(c) {
			continue
		}
		out = append(out, s.variable(c))
	}
	return out
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Email.Recipients = append([]string(nil), c.Email.Recipients...)
	cp.Email.Message = append([]string(nil), c.Email.Message...)
	return &cp
}
