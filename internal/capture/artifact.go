package capture

// Artifact is a finished recording on disk, ready for transcription input.
// Only the path crosses the capture -> transcribe boundary; no component
// holds an open handle past its own window.
type Artifact struct {
	Path         string
	SizeBytes    int64
	SampleRateHz int
	Channels     int
}
