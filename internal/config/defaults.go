package config

import (
	"github.com/knadh/koanf/v2"
)

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"server.host": "127.0.0.1",
		"server.port": 9977,

		"auth.key_file": "apikeys.txt",

		"paths.upload_dir": "uploads",
		"paths.work_dir":   "work",

		"tools.whisperx":        "whisperx",
		"tools.python":          "python",
		"tools.parakeet_script": "Scripts/parakeet_transcribe.py",
		"tools.ffmpeg":          "ffmpeg",

		"queue.poll_interval": "500ms",

		"expiry.sweep_interval": "1m",
		"expiry.job_timeout":    "30m",

		"logging.level": "info",

		"profiles.default.engine":       "whisperx",
		"profiles.default.model":        "large-v3",
		"profiles.default.device":       "cuda",
		"profiles.default.compute_type": "float16",
		"profiles.default.language":     "en",
		"profiles.default.vad_method":   "pyannote",
		"profiles.default.temperature":  0.0,

		"profiles.parakeet.engine":         "parakeet",
		"profiles.parakeet.model":          "",
		"profiles.parakeet.device":         "cuda",
		"profiles.parakeet.language":       "en",
		"profiles.parakeet.parakeet_model": "nvidia/parakeet-tdt-0.6b-v3",
	}

	for key, val := range defaults {
		k.Set(key, val)
	}
	return nil
}
