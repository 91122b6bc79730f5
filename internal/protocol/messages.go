package protocol

import "time"

// Scene is the wire form of one storyboard entry.
type Scene struct {
	ID             int    `json:"id"`
	ImagePrompt    string `json:"image_prompt"`
	NarratorScript string `json:"narrator_script"`
	ImageURL       string `json:"image_url,omitempty"`
}

// BoardSnapshot carries the full storyboard plus its transient state.
type BoardSnapshot struct {
	Scenes         []Scene   `json:"scenes"`
	CurrentIndex   int       `json:"current_index"`
	Playing        bool      `json:"playing"`
	RegeneratingID *int      `json:"regenerating_id,omitempty"`
	Loading        bool      `json:"loading"`
	Progress       string    `json:"progress,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	EditorError    string    `json:"editor_error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// SceneUpdate announces that a single scene was patched in place.
type SceneUpdate struct {
	Scene     Scene     `json:"scene"`
	Timestamp time.Time `json:"timestamp"`
}

// GenerationProgress is published while a pipeline run is loading.
type GenerationProgress struct {
	RunID     string    `json:"run_id"`
	Message   string    `json:"message"`
	Loading   bool      `json:"loading"`
	Timestamp time.Time `json:"timestamp"`
}

// GenerationResult closes out a pipeline run.
type GenerationResult struct {
	RunID      string    `json:"run_id"`
	SceneCount int       `json:"scene_count"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// PlaybackState is broadcast whenever index, playing flag, or timing changes.
type PlaybackState struct {
	Index           int       `json:"index"`
	Playing         bool      `json:"playing"`
	Mode            string    `json:"mode"`
	PerSceneSeconds float64   `json:"per_scene_seconds,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// SeekCommand instructs the audio player to jump to an offset.
type SeekCommand struct {
	PositionSeconds float64   `json:"position_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// PositionReport is a playback clock tick from the audio player.
type PositionReport struct {
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// AudioMetadata announces the loaded audio duration for the current board.
type AudioMetadata struct {
	DurationSeconds float64 `json:"duration_seconds"`
}

// SpeechRequest asks the synthesizer service to speak one scene's narration.
type SpeechRequest struct {
	UtteranceID string `json:"utterance_id"`
	SceneID     int    `json:"scene_id"`
	Text        string `json:"text"`
	Voice       string `json:"voice,omitempty"`
}

// SpeechAudio carries a synthesized clip to connected players. WAV is
// base64-encoded on the wire by the JSON codec.
type SpeechAudio struct {
	UtteranceID string    `json:"utterance_id"`
	SceneID     int       `json:"scene_id"`
	WAV         []byte    `json:"wav"`
	SampleRate  int       `json:"sample_rate"`
	DurationMS  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// SpeechDone signals that an utterance finished playing.
type SpeechDone struct {
	UtteranceID string    `json:"utterance_id"`
	SceneID     int       `json:"scene_id"`
	DurationMS  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// SpeechError signals a failed synthesis attempt.
type SpeechError struct {
	UtteranceID string    `json:"utterance_id"`
	SceneID     int       `json:"scene_id"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// SpeechCancel aborts whatever utterance is in flight.
type SpeechCancel struct {
	Timestamp time.Time `json:"timestamp"`
}

// PlayerAnnounce registers an external player with the daemon.
type PlayerAnnounce struct {
	PlayerID     string    `json:"player_id"`
	Kind         string    `json:"kind"`
	Capabilities []string  `json:"capabilities"`
	Timestamp    time.Time `json:"timestamp"`
}

// PlayerHeartbeat keeps a player registration alive.
type PlayerHeartbeat struct {
	PlayerID  string    `json:"player_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectBoardSnapshot = "board.snapshot"
	SubjectSceneUpdated  = "board.scene.updated"

	SubjectGenProgress = "gen.progress"
	SubjectGenDone     = "gen.done"
	SubjectGenError    = "gen.error"

	SubjectPlaybackState    = "playback.state"
	SubjectPlaybackSeek     = "playback.seek"
	SubjectPlaybackPosition = "playback.position"
	SubjectPlaybackEnded    = "playback.ended"
	SubjectAudioMetadata    = "playback.audio.metadata"

	SubjectSpeechSay    = "speech.say"
	SubjectSpeechAudio  = "speech.audio"
	SubjectSpeechDone   = "speech.done"
	SubjectSpeechError  = "speech.error"
	SubjectSpeechCancel = "speech.cancel"

	SubjectPlayerAnnounce        = "ctrl.player.announce"
	SubjectPlayerHeartbeatPrefix = "ctrl.player.heartbeat"
)
