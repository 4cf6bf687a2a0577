/*
【ファイル概要: config.go】
エンドポイント設定（§6 Configuration parameters）。

teacherの sfu.Config と同様に `mapstructure` タグを付与し、
github.com/spf13/viper でconfig.toml/yaml/jsonから読み込めるようにする。
*/
package rohc

import (
	"fmt"

	"github.com/spf13/viper"
)

// FeaturesConfig toggles optional behaviors named in §6.
type FeaturesConfig struct {
	CrcRepair   bool `mapstructure:"crc_repair"`
	CompatV1V6  bool `mapstructure:"compat_v1_6"`
}

// Config holds every endpoint-wide tunable from §6.
type Config struct {
	MaxCID             int            `mapstructure:"max_cid"`
	CIDType            string         `mapstructure:"cid_type"` // "small" or "large"
	Mode               string         `mapstructure:"mode"`     // "U", "O", "R"
	WLSBWindowWidth    int            `mapstructure:"wlsb_window_width"`
	IRTimeoutPackets   uint64         `mapstructure:"ir_timeout_packets"`
	IRTimeoutFOPackets uint64         `mapstructure:"ir_timeout_fo_packets"`
	IRTimeoutSeconds   int64          `mapstructure:"ir_timeout_seconds"`
	MRRU               int            `mapstructure:"mrru"`
	RTPPorts           []uint16       `mapstructure:"rtp_ports"`
	Features           FeaturesConfig `mapstructure:"features"`
	K                  int            `mapstructure:"k"`
	N                  int            `mapstructure:"n"`
	PendingFeedbackCap int            `mapstructure:"pending_feedback_capacity"`
}

// DefaultConfig mirrors every default named in §6.
func DefaultConfig() Config {
	return Config{
		MaxCID:             15,
		CIDType:            "small",
		Mode:               "U",
		WLSBWindowWidth:    4,
		IRTimeoutPackets:   1700,
		IRTimeoutFOPackets: 700,
		IRTimeoutSeconds:   200,
		MRRU:               0,
		RTPPorts:           nil,
		Features:           FeaturesConfig{CrcRepair: true},
		K:                  1,
		N:                  16,
		PendingFeedbackCap: 64,
	}
}

// LoadConfig reads a configuration file (toml/yaml/json, detected by
// extension) at path and decodes it into Config, applying
// DefaultConfig's values for anything the file doesn't set.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("rohc: reading config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("rohc: decoding config: %w", err)
	}
	return cfg, nil
}
