package gateway

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/reellabs/reel-core/internal/audiofile"
	"github.com/reellabs/reel-core/internal/boardfile"
	"github.com/reellabs/reel-core/internal/editor"
	"github.com/reellabs/reel-core/internal/pipeline"
	"github.com/reellabs/reel-core/internal/protocol"
	"github.com/reellabs/reel-core/internal/scriptsource"
	"github.com/reellabs/reel-core/internal/storyboard"
)

type topicRequest struct {
	Topic      string `json:"topic"`
	SceneCount int    `json:"scene_count"`
}

func (s *Service) createTopicBoard(c *gin.Context) {
	var req topicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.SceneCount == 0 {
		req.SceneCount = s.cfg.Board.DefaultSceneCount
	}

	runID, err := s.pipe.StartTopicRun(req.Topic, req.SceneCount, nil)
	if err != nil {
		s.respondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

func (s *Service) createScriptBoard(c *gin.Context) {
	scriptData, ok, err := s.readFormFile(c, "script", int64(s.cfg.Gateway.MaxUploadMB)<<20)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing script file"})
		return
	}
	lines, err := scriptsource.Lines(scriptData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	audioRef, err := s.readAudioUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID, err := s.pipe.StartScriptRun(lines, audioRef)
	if err != nil {
		// The pipeline never adopted the upload, so it is ours to drop.
		audioRef.Release()
		s.respondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "scene_count": len(lines)})
}

// readAudioUpload pulls the optional background-audio part out of the form
// and stores it on disk. A missing part returns (nil, nil).
func (s *Service) readAudioUpload(c *gin.Context) (*audiofile.Ref, error) {
	data, ok, err := s.readFormFile(c, "audio", int64(s.cfg.Audio.MaxUploadMB)<<20)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	ref, err := s.prober.Store(c.Request.Context(), data)
	if err != nil {
		return nil, fmt.Errorf("audio upload rejected: %w", err)
	}
	return ref, nil
}

func (s *Service) readFormFile(c *gin.Context, field string, maxBytes int64) ([]byte, bool, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s upload: %w", field, err)
	}
	if header.Size > maxBytes {
		return nil, false, fmt.Errorf("%s upload exceeds the %d MB limit", field, maxBytes>>20)
	}
	file, err := header.Open()
	if err != nil {
		return nil, false, fmt.Errorf("open %s upload: %w", field, err)
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return nil, false, fmt.Errorf("read %s upload: %w", field, err)
	}
	return data, true, nil
}

func (s *Service) getBoard(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Snapshot())
}

func (s *Service) exportBoard(c *gin.Context) {
	scenes := s.store.Scenes()
	if len(scenes) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no storyboard to export"})
		return
	}
	doc := boardfile.Document{Version: boardfile.CurrentVersion}
	for _, sc := range scenes {
		doc.Scenes = append(doc.Scenes, boardfile.SceneEntry{
			ID:             sc.ID,
			ImagePrompt:    sc.ImagePrompt,
			NarratorScript: sc.NarratorScript,
		})
	}
	data, err := boardfile.Encode(doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="storyboard.yaml"`)
	c.Data(http.StatusOK, "application/x-yaml", data)
}

func (s *Service) importBoard(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
		return
	}
	doc, err := boardfile.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := boardfile.Validate(doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seeds := make([]storyboard.SceneSeed, 0, len(doc.Scenes))
	for _, entry := range doc.Scenes {
		seeds = append(seeds, storyboard.SceneSeed{
			ImagePrompt:    entry.ImagePrompt,
			NarratorScript: entry.NarratorScript,
		})
	}
	if err := s.pipe.ImportBoard(seeds); err != nil {
		s.respondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scene_count": len(seeds)})
}

type scenePatchRequest struct {
	NarratorScript *string `json:"narrator_script"`
	ImagePrompt    *string `json:"image_prompt"`
}

func (s *Service) patchScene(c *gin.Context) {
	id, ok := s.sceneID(c)
	if !ok {
		return
	}
	var req scenePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	patch := editor.ScenePatch{NarratorScript: req.NarratorScript, ImagePrompt: req.ImagePrompt}
	if err := s.editor.ApplyPatch(id, patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sc, _ := s.store.SceneByID(id)
	c.JSON(http.StatusOK, protocol.Scene{
		ID:             sc.ID,
		ImagePrompt:    sc.ImagePrompt,
		NarratorScript: sc.NarratorScript,
		ImageURL:       sc.ImageURL,
	})
}

func (s *Service) regenerateScene(c *gin.Context) {
	id, ok := s.sceneID(c)
	if !ok {
		return
	}
	if err := s.editor.RegenerateImage(id); err != nil {
		s.respondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"scene_id": id})
}

func (s *Service) getSceneImage(c *gin.Context) {
	id, ok := s.sceneID(c)
	if !ok {
		return
	}
	data, mime, found := s.store.Image(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "scene has no image"})
		return
	}
	c.Data(http.StatusOK, mime, data)
}

func (s *Service) getSceneThumb(c *gin.Context) {
	id, ok := s.sceneID(c)
	if !ok {
		return
	}
	data, _, found := s.store.Image(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "scene has no image"})
		return
	}
	thumb, err := scaleThumb(data, s.cfg.Gateway.ThumbWidth)
	if err != nil {
		s.logger.Warn("thumbnail scaling failed", slog.Int("scene_id", id), slogError(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "thumbnail scaling failed"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", thumb)
}

func (s *Service) getAudio(c *gin.Context) {
	ref := s.pipe.AudioRef()
	if ref == nil || ref.Path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no audio loaded"})
		return
	}
	c.Header("Content-Type", ref.Mime)
	c.File(ref.Path)
}

func (s *Service) getPlayback(c *gin.Context) {
	st := s.playback.State()
	c.JSON(http.StatusOK, protocol.PlaybackState{
		Index:           st.Index,
		Playing:         st.Playing,
		Mode:            string(st.Mode),
		PerSceneSeconds: st.PerScene.Seconds(),
	})
}

func (s *Service) togglePlayback(c *gin.Context) {
	if s.rejectWhileLoading(c) {
		return
	}
	s.respondCommand(c, s.playback.TogglePlay())
}

func (s *Service) nextScene(c *gin.Context) {
	if s.rejectWhileLoading(c) {
		return
	}
	s.respondCommand(c, s.playback.Next())
}

func (s *Service) prevScene(c *gin.Context) {
	if s.rejectWhileLoading(c) {
		return
	}
	s.respondCommand(c, s.playback.Prev())
}

type gotoRequest struct {
	Index int `json:"index"`
}

func (s *Service) gotoScene(c *gin.Context) {
	if s.rejectWhileLoading(c) {
		return
	}
	var req gotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	s.respondCommand(c, s.playback.GoToScene(req.Index))
}

type positionRequest struct {
	Seconds float64 `json:"seconds"`
}

func (s *Service) reportPosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	s.playback.ReportPosition(req.Seconds)
	c.Status(http.StatusNoContent)
}

func (s *Service) reportEnded(c *gin.Context) {
	s.playback.ReportEnded()
	c.Status(http.StatusNoContent)
}

type metadataRequest struct {
	DurationSeconds float64 `json:"duration_seconds"`
}

func (s *Service) reportMetadata(c *gin.Context) {
	var req metadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	s.playback.ReportMetadata(req.DurationSeconds)
	c.Status(http.StatusNoContent)
}

// sceneID parses the :id route parameter and 404s unknown scenes.
func (s *Service) sceneID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scene id"})
		return 0, false
	}
	if _, ok := s.store.SceneByID(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown scene id %d", id)})
		return 0, false
	}
	return id, true
}

// rejectWhileLoading blocks playback commands while a board is generating,
// when the scene list is still in flux.
func (s *Service) rejectWhileLoading(c *gin.Context) bool {
	if loading, _ := s.store.Loading(); loading {
		c.JSON(http.StatusConflict, gin.H{"error": "generation in progress"})
		return true
	}
	return false
}

func (s *Service) respondCommand(c *gin.Context, err error) {
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Service) respondPipelineError(c *gin.Context, err error) {
	if errors.Is(err, pipeline.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
