// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("audio.samplerate", 48000)
	v.SetDefault("audio.buffersize", 512)
	v.SetDefault("audio.channels", 2)

	v.SetDefault("buffers.maxmemorymb", 256.0)
	v.SetDefault("buffers.chunksize", 4096)
	v.SetDefault("buffers.cachesizemb", 64.0)
	v.SetDefault("buffers.poolsize", 8)
	v.SetDefault("buffers.totalmemorymb", 1024.0)
	v.SetDefault("buffers.monitorinterval", 5*time.Second)
	v.SetDefault("buffers.tempdir", "")

	v.SetDefault("processor.inputqueue", 8)
	v.SetDefault("processor.outputqueue", 8)
	v.SetDefault("processor.waittimeout", 10*time.Millisecond)
	v.SetDefault("processor.inputlatency", 0)
	v.SetDefault("processor.outputlatency", 0)
	v.SetDefault("processor.historysize", 1000)
	v.SetDefault("processor.capturesecs", 30.0)

	v.SetDefault("export.format", "wav")
	v.SetDefault("export.bitdepth", 24)
	v.SetDefault("export.bitrate", "192k")
	v.SetDefault("export.ffmpegpath", "ffmpeg")
	v.SetDefault("export.timeout", 30*time.Second)

	v.SetDefault("diagnostics.enabled", false)
	v.SetDefault("diagnostics.listen", "localhost:8090")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
}
