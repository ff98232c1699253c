package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/scrape"
)

// ChatClient is the slice of the Groq client the agents use.
type ChatClient interface {
	ChatJSON(ctx context.Context, system, user string) (string, error)
	IsConfigured() bool
}

// PageFetcher downloads and extracts a website.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*scrape.Page, error)
}

// WebOverview is what the web_scraping step learns about the company.
type WebOverview struct {
	CompanyOverview string   `json:"company_overview"`
	Products        []string `json:"products"`
	TargetAudience  string   `json:"target_audience"`
	Pricing         string   `json:"pricing"`
	Features        []string `json:"features"`
	Technology      string   `json:"technology"`
}

// Positioning is the output of the market_positioning step.
type Positioning struct {
	Strategy   string   `json:"positioning_strategy"`
	MarketGaps []string `json:"market_gaps"`
	Advantages []string `json:"competitive_advantages"`
}

// AnalysisState accumulates agent outputs across the steps of one job.
type AnalysisState struct {
	AnalysisID  string
	Company     model.CompanyInput
	UserName    string
	Overview    *WebOverview
	Competitors []model.Competitor
	Trends      []model.MarketTrend
	Positioning *Positioning
}

// Result assembles the public result from the accumulated outputs.
func (st *AnalysisState) Result() *model.AnalysisResult {
	res := &model.AnalysisResult{
		AnalysisID: st.AnalysisID,
		Company: &model.CompanySummary{
			Name:       st.Company.Name,
			WebsiteURL: st.Company.WebsiteURL,
		},
		Competitors:           nonNil(st.Competitors),
		MarketTrends:          nonNil(st.Trends),
		MarketGaps:            []string{},
		CompetitiveAdvantages: []string{},
	}
	if st.Positioning != nil {
		res.PositioningStrategy = st.Positioning.Strategy
		res.MarketGaps = nonNil(st.Positioning.MarketGaps)
		res.CompetitiveAdvantages = nonNil(st.Positioning.Advantages)
	}
	return res
}

// Agents runs one analysis step at a time. Without a configured LLM every
// step produces fixed fallback data; with one, an LLM failure fails the step.
type Agents struct {
	llm     ChatClient
	fetcher PageFetcher
	logger  *slog.Logger
}

func NewAgents(llm ChatClient, fetcher PageFetcher, logger *slog.Logger) *Agents {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agents{llm: llm, fetcher: fetcher, logger: logger}
}

func (a *Agents) live() bool {
	return a.llm != nil && a.llm.IsConfigured()
}

// Run executes step against st.
func (a *Agents) Run(ctx context.Context, step model.StepName, st *AnalysisState) error {
	switch step {
	case model.StepWebScraping:
		return a.webScraping(ctx, st)
	case model.StepCompetitorResearch:
		return a.competitorResearch(ctx, st)
	case model.StepTrendPrediction:
		return a.trendPrediction(ctx, st)
	case model.StepWeaknessAnalysis:
		return a.weaknessAnalysis(ctx, st)
	case model.StepMarketPositioning:
		return a.marketPositioning(ctx, st)
	}
	return fmt.Errorf("no agent for step %q", step)
}

const analystSystemPrompt = `You are a senior market research analyst.
Answer with a single valid JSON object in the exact format requested.
Do not include any text outside the JSON structure.`

func (a *Agents) webScraping(ctx context.Context, st *AnalysisState) error {
	if !a.live() {
		st.Overview = fallbackOverview(st.Company)
		return nil
	}

	pageText := "(website could not be fetched)"
	if a.fetcher != nil {
		page, err := a.fetcher.Fetch(ctx, st.Company.WebsiteURL)
		if err != nil {
			a.logger.Warn("website fetch failed", "url", st.Company.WebsiteURL, "error", err)
		} else {
			pageText = fmt.Sprintf("Title: %s\nDescription: %s\nText: %s", page.Title, page.Description, page.Text)
		}
	}

	prompt := fmt.Sprintf(`Company: %s
Website: %s
Product: %s
Website content:
%s

Summarize the company. Use null for anything you cannot find.
Output as JSON: {"company_overview": "", "products": [""], "target_audience": "", "pricing": "", "features": [""], "technology": ""}`,
		st.Company.Name, st.Company.WebsiteURL, st.Company.ProductDescription, pageText)

	var overview WebOverview
	if err := a.ask(ctx, prompt, &overview); err != nil {
		return err
	}
	st.Overview = &overview
	return nil
}

func (a *Agents) competitorResearch(ctx context.Context, st *AnalysisState) error {
	if !a.live() {
		st.Competitors = fallbackCompetitors()
		return nil
	}

	prompt := fmt.Sprintf(`Find the top competitors of %s in the %s space.
Company overview: %s
Product: %s

List 3 to 5 competitors with an estimated market share percentage (0-100).
Output as JSON: {"competitors": [{"name": "", "website": "", "market_share": 0, "strengths": [""], "weaknesses": [""]}]}`,
		st.Company.Name, st.Company.MarketCategory, st.overviewText(), st.Company.ProductDescription)

	var out struct {
		Competitors []model.Competitor `json:"competitors"`
	}
	if err := a.ask(ctx, prompt, &out); err != nil {
		return err
	}
	st.Competitors = cleanCompetitors(out.Competitors)
	if dropped := len(out.Competitors) - len(st.Competitors); dropped > 0 {
		a.logger.Warn("dropped unnamed competitors", "analysis_id", st.AnalysisID, "count", dropped)
	}
	return nil
}

func (a *Agents) trendPrediction(ctx context.Context, st *AnalysisState) error {
	if !a.live() {
		st.Trends = fallbackTrends()
		return nil
	}

	prompt := fmt.Sprintf(`Identify and analyze the top trends in the %s market.
Competitors: %s

For each trend give its impact (High, Medium or Low) and your confidence (0-100).
Output as JSON: {"market_trends": [{"trend": "", "impact": "", "confidence": 0}]}`,
		st.Company.MarketCategory, competitorNames(st.Competitors))

	var out struct {
		Trends []model.MarketTrend `json:"market_trends"`
	}
	if err := a.ask(ctx, prompt, &out); err != nil {
		return err
	}
	st.Trends = cleanTrends(out.Trends)
	if dropped := len(out.Trends) - len(st.Trends); dropped > 0 {
		a.logger.Warn("dropped empty trends", "analysis_id", st.AnalysisID, "count", dropped)
	}
	return nil
}

// weaknessAnalysis adds weaknesses to already researched competitors.
func (a *Agents) weaknessAnalysis(ctx context.Context, st *AnalysisState) error {
	if !a.live() || len(st.Competitors) == 0 {
		return nil
	}

	prompt := fmt.Sprintf(`%s sells %s in the %s market.
Competitors: %s

For each competitor list weaknesses %s could exploit.
Output as JSON: {"weaknesses": {"<competitor name>": [""]}}`,
		st.Company.Name, st.Company.ProductDescription, st.Company.MarketCategory,
		competitorNames(st.Competitors), st.Company.Name)

	var out struct {
		Weaknesses map[string][]string `json:"weaknesses"`
	}
	if err := a.ask(ctx, prompt, &out); err != nil {
		return err
	}
	for i := range st.Competitors {
		st.Competitors[i].Weaknesses = mergeUnique(st.Competitors[i].Weaknesses, out.Weaknesses[st.Competitors[i].Name])
	}
	return nil
}

func (a *Agents) marketPositioning(ctx context.Context, st *AnalysisState) error {
	if !a.live() {
		st.Positioning = fallbackPositioning(st.Company)
		return nil
	}

	userContext := ""
	if st.UserName != "" {
		userContext = "Analysis requested by: " + st.UserName
	}
	trends := make([]string, len(st.Trends))
	for i, t := range st.Trends {
		trends[i] = t.Trend
	}
	prompt := fmt.Sprintf(`Based on the profile of %s, suggest market gaps it can fill and the competitive advantages it offers.
Overview: %s
Competitors: %s
Trends: %s
%s

Output as JSON: {"positioning_strategy": "", "market_gaps": [""], "competitive_advantages": [""]}`,
		st.Company.Name, st.overviewText(), competitorNames(st.Competitors), strings.Join(trends, ", "), userContext)

	var out Positioning
	if err := a.ask(ctx, prompt, &out); err != nil {
		return err
	}
	st.Positioning = &out
	return nil
}

func (a *Agents) ask(ctx context.Context, prompt string, out interface{}) error {
	response, err := a.llm.ChatJSON(ctx, analystSystemPrompt, prompt)
	if err != nil {
		return fmt.Errorf("AI generation failed: %w", err)
	}
	return unmarshalReply(response, out)
}

// extractJSON strips code fences and surrounding prose from a model reply.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

func (st *AnalysisState) overviewText() string {
	if st.Overview == nil || st.Overview.CompanyOverview == "" {
		return st.Company.ProductDescription
	}
	return st.Overview.CompanyOverview
}

func competitorNames(cs []model.Competitor) string {
	if len(cs) == 0 {
		return "unknown"
	}
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

// cleanCompetitors drops unnamed entries and clamps shares to 0-100.
func cleanCompetitors(in []model.Competitor) []model.Competitor {
	out := make([]model.Competitor, 0, len(in))
	for _, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		c.MarketShare = clampPercent(c.MarketShare)
		out = append(out, c)
	}
	return out
}

// cleanTrends drops entries without a trend and clamps confidence to 0-100.
func cleanTrends(in []model.MarketTrend) []model.MarketTrend {
	out := make([]model.MarketTrend, 0, len(in))
	for _, t := range in {
		t.Trend = strings.TrimSpace(t.Trend)
		if t.Trend == "" {
			continue
		}
		t.Confidence = clampPercent(t.Confidence)
		out = append(out, t)
	}
	return out
}

func clampPercent(v float64) float64 {
	return min(max(v, 0), 100)
}

func mergeUnique(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, s := range base {
		seen[strings.ToLower(s)] = true
	}
	for _, s := range extra {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		base = append(base, strings.TrimSpace(s))
	}
	return base
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func fallbackOverview(c model.CompanyInput) *WebOverview {
	return &WebOverview{
		CompanyOverview: fmt.Sprintf("%s is a company in the %s market.", c.Name, c.MarketCategory),
		Products:        []string{c.ProductDescription},
		TargetAudience:  "Small to medium businesses",
		Pricing:         "Competitive pricing model",
		Features:        []string{"Feature 1", "Feature 2"},
		Technology:      "Modern tech stack",
	}
}

func fallbackCompetitors() []model.Competitor {
	return []model.Competitor{
		{
			Name:        "Competitor A",
			Website:     "https://competitor-a.com",
			MarketShare: 30.0,
			Strengths:   []string{"Strong brand recognition", "Wide market presence"},
			Weaknesses:  []string{"High pricing", "Complex interface"},
		},
		{
			Name:        "Competitor B",
			Website:     "https://competitor-b.com",
			MarketShare: 25.5,
			Strengths:   []string{"Intuitive UX", "Mobile-first approach"},
			Weaknesses:  []string{"Limited features", "Smaller user base"},
		},
		{
			Name:        "Competitor C",
			Website:     "https://competitor-c.com",
			MarketShare: 20.0,
			Strengths:   []string{"Robust support", "Enterprise features"},
			Weaknesses:  []string{"Complex onboarding", "Higher learning curve"},
		},
	}
}

func fallbackTrends() []model.MarketTrend {
	return []model.MarketTrend{
		{Trend: "AI-Powered Features", Impact: "High", Confidence: 85},
		{Trend: "Mobile Optimization", Impact: "Medium", Confidence: 75},
		{Trend: "Sustainability Focus", Impact: "High", Confidence: 80},
	}
}

func fallbackPositioning(c model.CompanyInput) *Positioning {
	return &Positioning{
		Strategy:   fmt.Sprintf("Position %s as a modern, user-first solution built for growth.", c.Name),
		MarketGaps: []string{"Lack of mobile-first tools", "Limited smart automation"},
		Advantages: []string{"User-centric design", "AI integration"},
	}
}
