package conf

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// RTAUDIO_AUDIO_SAMPLERATE overrides audio.samplerate.
const EnvPrefix = "RTAUDIO"

// configureEnvironmentVariables maps nested keys to RTAUDIO_SECTION_KEY.
func configureEnvironmentVariables(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
