package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/competeiq/api/internal/client"
	"github.com/competeiq/api/internal/model"
)

// MockAudioURL is returned when speech synthesis or storage is unavailable.
const MockAudioURL = "https://via.placeholder.com/audio/mock-audio-file.mp3"

// SpeechClient synthesizes narration audio.
type SpeechClient interface {
	Speech(ctx context.Context, script, voice string) ([]byte, error)
	IsConfigured() bool
}

// ttsVoices maps narration voices onto the speech model's voice names.
var ttsVoices = map[model.Voice]string{
	model.VoiceProfessionalMale:   "Fritz-PlayAI",
	model.VoiceProfessionalFemale: "Arista-PlayAI",
	model.VoiceFriendly:           "Celeste-PlayAI",
}

// AssetService generates the marketing script, images and narration for a
// completed analysis.
type AssetService struct {
	redis    *redis.Client
	llm      ChatClient
	tts      SpeechClient
	storage  client.StorageClient
	analysis *AnalysisService
	logger   *slog.Logger
}

func NewAssetService(redisClient *redis.Client, llm ChatClient, tts SpeechClient, storage client.StorageClient, analysis *AnalysisService, logger *slog.Logger) *AssetService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetService{
		redis:    redisClient,
		llm:      llm,
		tts:      tts,
		storage:  storage,
		analysis: analysis,
		logger:   logger,
	}
}

// GenerateScript writes a narration script from the analysis result and
// stores it as a marketing asset.
func (s *AssetService) GenerateScript(ctx context.Context, userID string, req *model.ScriptRequest) (*model.ScriptResponse, error) {
	req.ApplyDefaults()

	job, err := s.analysis.GetJob(ctx, req.AnalysisID)
	if err != nil {
		return nil, err
	}
	result, err := s.analysis.GetResult(ctx, req.AnalysisID)
	if err != nil {
		if errors.Is(err, ErrJobNotCompleted) || errors.Is(err, ErrJobFailed) {
			return nil, ErrAnalysisNotCompleted
		}
		return nil, err
	}

	var script string
	if s.llm != nil && s.llm.IsConfigured() {
		script, err = s.llmScript(ctx, req, result)
		if err != nil {
			return nil, err
		}
	} else {
		script = templateScript(req.Style, req.Duration)
	}

	now := time.Now()
	asset := &model.MarketingAsset{
		ID:            uuid.New().String(),
		CompanyID:     job.CompanyID,
		AnalysisID:    req.AnalysisID,
		UserID:        userID,
		ScriptContent: script,
		Duration:      req.Duration,
		Style:         req.Style,
		Status:        model.AssetStatusScriptGenerated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.analysis.setJSON(ctx, assetKey(asset.ID), asset); err != nil {
		return nil, fmt.Errorf("failed to save asset: %w", err)
	}

	return &model.ScriptResponse{Script: script, AssetID: asset.ID}, nil
}

func (s *AssetService) llmScript(ctx context.Context, req *model.ScriptRequest, result *model.AnalysisResult) (string, error) {
	name := "the company"
	if result.Company != nil && result.Company.Name != "" {
		name = result.Company.Name
	}
	words := int(float64(req.Duration) * model.WordsPerSecond)
	prompt := fmt.Sprintf(`Write a %d second %s marketing voice-over script for %s.
Keep it under %d words and written to be read aloud.
Positioning: %s
Advantages: %s
Market gaps it fills: %s

Output as JSON: {"script": ""}`,
		req.Duration, req.Style, name, words, result.PositioningStrategy,
		strings.Join(result.CompetitiveAdvantages, ", "), strings.Join(result.MarketGaps, ", "))

	response, err := s.llm.ChatJSON(ctx, "You are an award-winning advertising copywriter. Answer with valid JSON only.", prompt)
	if err != nil {
		return "", fmt.Errorf("AI generation failed: %w", err)
	}
	var out struct {
		Script string `json:"script"`
	}
	if err := unmarshalReply(response, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Script) == "" {
		return "", errors.New("AI returned an empty script")
	}
	return strings.TrimSpace(out.Script), nil
}

// GenerateImages returns three visuals spread evenly over the target
// duration.
func (s *AssetService) GenerateImages(ctx context.Context, req *model.ImagesRequest) (*model.ImagesResponse, error) {
	req.ApplyDefaults()

	prompts := mockImagePrompts(req.CompanyName)
	source := model.ImageSourceMock
	if s.llm != nil && s.llm.IsConfigured() {
		scenes, err := s.scenePrompts(ctx, req)
		if err != nil {
			return nil, err
		}
		prompts = scenes
		source = model.ImageSourceLLM
	}

	images := make([]model.GeneratedImage, len(prompts))
	for i, p := range prompts {
		images[i] = model.GeneratedImage{
			URL:       imageURL(i, p, source),
			Prompt:    p,
			Timestamp: float64(i * model.AssetTargetDuration / len(prompts)),
			Source:    source,
		}
	}
	return &model.ImagesResponse{Images: images}, nil
}

func (s *AssetService) scenePrompts(ctx context.Context, req *model.ImagesRequest) ([]string, error) {
	prompt := fmt.Sprintf(`Split this %s marketing script for %s into exactly 3 visual scenes.
Describe each scene as a short image generation prompt.
Script: %s

Output as JSON: {"scenes": ["", "", ""]}`, req.Style, req.CompanyName, req.Script)

	response, err := s.llm.ChatJSON(ctx, "You are a creative director. Answer with valid JSON only.", prompt)
	if err != nil {
		return nil, fmt.Errorf("AI generation failed: %w", err)
	}
	var out struct {
		Scenes []string `json:"scenes"`
	}
	if err := unmarshalReply(response, &out); err != nil {
		return nil, err
	}

	// Pad or cut to three scenes so timestamps stay on the 0/10/20 grid.
	fallback := mockImagePrompts(req.CompanyName)
	scenes := make([]string, 0, 3)
	for _, sc := range out.Scenes {
		if sc = strings.TrimSpace(sc); sc != "" && len(scenes) < 3 {
			scenes = append(scenes, sc)
		}
	}
	for len(scenes) < 3 {
		scenes = append(scenes, fallback[len(scenes)])
	}
	return scenes, nil
}

// GenerateAudio narrates the script and uploads the result. Without speech
// synthesis or storage the mock URL is returned.
func (s *AssetService) GenerateAudio(ctx context.Context, req *model.AudioRequest) (*model.AudioResponse, error) {
	req.ApplyDefaults()

	if s.tts == nil || !s.tts.IsConfigured() || s.storage == nil {
		return &model.AudioResponse{AudioURL: MockAudioURL}, nil
	}

	voice, ok := ttsVoices[req.Voice]
	if !ok {
		voice = ttsVoices[model.VoiceProfessionalMale]
	}
	audio, err := s.tts.Speech(ctx, req.Script, voice)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}

	key := fmt.Sprintf("audio/%s.mp3", uuid.New().String())
	audioURL, err := s.storage.Upload(ctx, key, bytes.NewReader(audio), "audio/mpeg")
	if err != nil {
		return nil, err
	}
	s.logger.Info("narration uploaded", "key", key, "bytes", len(audio))
	return &model.AudioResponse{AudioURL: audioURL}, nil
}

// GetAsset returns a stored script asset.
func (s *AssetService) GetAsset(ctx context.Context, assetID string) (*model.MarketingAsset, error) {
	var asset model.MarketingAsset
	if err := s.analysis.getJSON(ctx, assetKey(assetID), &asset); err != nil {
		return nil, fmt.Errorf("asset %s: %w", assetID, err)
	}
	return &asset, nil
}

var scriptTemplates = map[model.ScriptStyle]string{
	model.StyleProfessional: `Welcome to our comprehensive solution for modern businesses.
In today's competitive landscape, companies need innovative tools that deliver real results.

Our platform offers advanced features that set us apart from competitors,
including superior user experience, cutting-edge AI capabilities,
and comprehensive integrations that streamline your workflow.

With our solution, you can expect improved efficiency, reduced costs,
and a significant competitive advantage in your market.

Don't let your competitors get ahead. Choose the solution that's built for success.`,
	model.StyleCasual: `Hey there! Looking for something that actually works?
We've got you covered with our awesome platform that's changing the game.

Unlike those other guys, we focus on what really matters - making your life easier.
Our intuitive interface and powerful features will have you wondering how you ever managed without us.

Plus, our AI capabilities are seriously impressive.
It's like having a genius assistant that never takes a coffee break!

Ready to level up? Let's make it happen!`,
	model.StyleTechnical: `Our enterprise-grade solution leverages cutting-edge technologies
to deliver unparalleled performance and scalability.

Built on a modern microservices architecture with real-time data processing,
our platform integrates seamlessly with existing infrastructure while providing
advanced analytics and machine learning capabilities.

Key technical advantages include:
- Sub-second response times
- 99.9% uptime SLA
- RESTful API with comprehensive documentation
- Multi-tenant architecture with enterprise security

Deploy with confidence knowing you have the most robust solution available.`,
}

// templateScript cuts the style template to the word budget of duration:
// under 50 words keeps the first sentence, under 100 the first two.
func templateScript(style model.ScriptStyle, duration int) string {
	tmpl, ok := scriptTemplates[style]
	if !ok {
		tmpl = scriptTemplates[model.StyleProfessional]
	}
	target := int(float64(duration) * model.WordsPerSecond)
	parts := strings.Split(tmpl, ".")
	switch {
	case target < 50:
		tmpl = parts[0] + "."
	case target < 100:
		tmpl = strings.Join(parts[:2], ". ") + "."
	}
	return strings.Join(strings.Fields(tmpl), " ")
}

func mockImagePrompts(company string) []string {
	return []string{
		"Professional marketing image for " + company,
		"Modern business concept for " + company,
		"Success and growth visualization for " + company,
	}
}

var imageColors = []string{"4F46E5", "7C3AED", "059669"}

func imageURL(i int, prompt, source string) string {
	text := fmt.Sprintf("Marketing+Image+%d", i+1)
	if source == model.ImageSourceLLM {
		text = url.QueryEscape(prompt)
	}
	return fmt.Sprintf("https://via.placeholder.com/800x600/%s/FFFFFF?text=%s", imageColors[i%len(imageColors)], text)
}

func unmarshalReply(response string, out interface{}) error {
	if err := json.Unmarshal([]byte(extractJSON(response)), out); err != nil {
		return fmt.Errorf("failed to parse AI response: %w", err)
	}
	return nil
}

func assetKey(id string) string { return fmt.Sprintf("asset:%s", id) }
