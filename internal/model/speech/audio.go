package speech

// Audio 是合成端口返回的编码音频。
type Audio struct {
	Data   []byte
	Format string // mp3, wav, pcm ...
}

// Empty reports whether no audio bytes were produced.
func (a *Audio) Empty() bool {
	return a == nil || len(a.Data) == 0
}

// Extension returns the file extension used for on-disk artifacts.
func (a *Audio) Extension() string {
	if a == nil || a.Format == "" {
		return "mp3"
	}
	return a.Format
}

// ContentType maps the audio format to a MIME type for HTTP responses.
func ContentType(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "pcm":
		return "audio/L16"
	case "ogg", "ogg_opus":
		return "audio/ogg"
	case "", "mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
