package genai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNotObject = errors.New("reply is not a JSON object")

// StripFences 去掉模型可能包裹的 ``` 代码块标记，只做语法层面的修复
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	body := strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}

	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

// decodeObject 严格解码：必须是单个 JSON 对象，前后不允许出现其他文本
func decodeObject(raw string, out interface{}) error {
	text := StripFences(raw)
	if !strings.HasPrefix(text, "{") {
		return errNotObject
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return err
	}
	return nil
}

type CaseStudyContent struct {
	Title                  string          `json:"title"`
	Summary                string          `json:"summary"`
	ProblemSummary         string          `json:"problemSummary"`
	SolutionSummary        string          `json:"solutionSummary"`
	TechStack              string          `json:"techStack"`
	ArchitectureOverview   string          `json:"architectureOverview"`
	CoreFeatures           json.RawMessage `json:"coreFeatures"`
	ChallengesAndSolutions string          `json:"challengesAndSolutions"`
	Impact                 string          `json:"impact"`
	ProofData              json.RawMessage `json:"proofData"`
}

func ParseCaseStudy(raw string) (*CaseStudyContent, error) {
	var out CaseStudyContent
	if err := decodeObject(raw, &out); err != nil {
		return nil, err
	}
	if len(out.CoreFeatures) > 0 && !isJSONKind(out.CoreFeatures, '[') {
		return nil, fmt.Errorf("coreFeatures must be an array")
	}
	if len(out.ProofData) > 0 && !isJSONKind(out.ProofData, '{') {
		return nil, fmt.Errorf("proofData must be an object")
	}
	return &out, nil
}

func isJSONKind(raw json.RawMessage, open byte) bool {
	s := strings.TrimSpace(string(raw))
	return s == "null" || (len(s) > 0 && s[0] == open)
}

var (
	// ScoreKeys VC 报告必须包含的评分维度
	ScoreKeys = []string{
		"problemClarity",
		"solutionStrength",
		"marketPotential",
		"technicalQuality",
		"defensibility",
		"tractionReadiness",
		"executionRisk",
		"overallStartupPotential",
	}

	// NarrativeKeys VC 报告必须包含的叙述段落
	NarrativeKeys = []string{
		"problemAndUserPain",
		"solutionAndProduct",
		"marketAndCompetition",
		"technologyAndArchitecture",
		"tractionAndValidation",
		"risksAndGaps",
		"growthPathAndNextSteps",
	}
)

type Score struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

type VCReportContent struct {
	Scores            map[string]Score  `json:"scores"`
	NarrativeSections map[string]string `json:"narrativeSections"`
	Verdict           string            `json:"verdict"`
}

// ParseVCReport 解码并校验：评分为 0-10 的整数，所有段落非空。不合格直接拒绝，不做截断或补全。
func ParseVCReport(raw string) (*VCReportContent, error) {
	var out VCReportContent
	if err := decodeObject(raw, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *VCReportContent) Validate() error {
	for _, key := range ScoreKeys {
		s, ok := r.Scores[key]
		if !ok {
			return fmt.Errorf("missing score %q", key)
		}
		if s.Score < 0 || s.Score > 10 {
			return fmt.Errorf("score %q out of range: %d", key, s.Score)
		}
	}
	for _, key := range NarrativeKeys {
		if strings.TrimSpace(r.NarrativeSections[key]) == "" {
			return fmt.Errorf("missing narrative section %q", key)
		}
	}
	if strings.TrimSpace(r.Verdict) == "" {
		return fmt.Errorf("missing verdict")
	}
	return nil
}
