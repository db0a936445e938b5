package genai

import (
	"encoding/json"
	"strings"
)

const (
	ModeCaseStudy = "case_study"
	ModeVCReport  = "vc_report"
)

const emptyContextNote = "(No repository files could be retrieved. Base the answer on the metadata only and mark unknown fields as unknown.)"

const caseStudyPrompt = `You are a senior technical analyst reviewing a software repository.
Produce a concise, evidence-backed case study as a single JSON object.
Use ONLY the repository context and metadata below. When a fact is unknown use "", 0, false or [] instead of guessing.

Rules:
- Output only the JSON object. No markdown, no commentary.
- Do not include id, userId, repoUrl, slug or timestamps.
- Keep sentences short and concrete. Refer to files instead of quoting code.

REPOSITORY CONTEXT:
{{REPO_CONTEXT_LIGHT}}

REPOSITORY METADATA:
{{REPO_METADATA_JSON}}

OUTPUT SHAPE:
{
  "title": string,                  // <= 80 characters
  "summary": string,                // 3-4 sentences
  "problemSummary": string,         // the problem the project addresses
  "solutionSummary": string,        // how the project addresses it
  "techStack": string,              // comma separated
  "architectureOverview": string,   // 1-2 short paragraphs
  "coreFeatures": [{"name": string, "description": string, "evidence": {"files": [string], "dependencies": [string]}}],
  "challengesAndSolutions": string,
  "impact": string,
  "proofData": {
    "mainLanguages": [{"language": string, "percentage": number}],
    "keyFiles": [string],
    "entryPoints": [string],
    "testsPresent": boolean,
    "ciConfigured": boolean
  }
}`

const vcReportPrompt = `You are an early-stage venture investor with a strong engineering background.
Evaluate the project below and return a single JSON object. Be blunt and conservative.

Rules:
- Output only the JSON object. No markdown, no commentary.
- Every score is an integer from 0 to 10 with a 1-3 sentence reason.
- Every narrative section is a non-empty string of at most two short paragraphs.
- Use only the information given. Say explicitly when something is unknown.

CASE STUDY:
{{CASE_STUDY_JSON}}

REPOSITORY CONTEXT:
{{REPO_CONTEXT_LIGHT}}

REPOSITORY METRICS (MAY BE NULL):
{{REPO_METRICS_JSON}}

OUTPUT SHAPE:
{
  "scores": {
    "problemClarity": {"score": integer, "reason": string},
    "solutionStrength": {"score": integer, "reason": string},
    "marketPotential": {"score": integer, "reason": string},
    "technicalQuality": {"score": integer, "reason": string},
    "defensibility": {"score": integer, "reason": string},
    "tractionReadiness": {"score": integer, "reason": string},
    "executionRisk": {"score": integer, "reason": string},
    "overallStartupPotential": {"score": integer, "reason": string}
  },
  "narrativeSections": {
    "problemAndUserPain": string,
    "solutionAndProduct": string,
    "marketAndCompetition": string,
    "technologyAndArchitecture": string,
    "tractionAndValidation": string,
    "risksAndGaps": string,
    "growthPathAndNextSteps": string
  },
  "verdict": string
}`

// render 替换 {{KEY}} 占位符，未提供的占位符原样保留
func render(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func contextOrNote(context string) string {
	if strings.TrimSpace(context) == "" {
		return emptyContextNote
	}
	return context
}

func toJSON(v interface{}) string {
	if v == nil {
		return "null"
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "null"
	}
	return string(data)
}

// CaseStudyPrompt 案例模式 prompt
func CaseStudyPrompt(context string, metadata interface{}) string {
	return render(caseStudyPrompt, map[string]string{
		"REPO_CONTEXT_LIGHT": contextOrNote(context),
		"REPO_METADATA_JSON": toJSON(metadata),
	})
}

// VCReportPrompt 报告模式 prompt
func VCReportPrompt(caseStudy interface{}, context string, metrics interface{}) string {
	return render(vcReportPrompt, map[string]string{
		"CASE_STUDY_JSON":    toJSON(caseStudy),
		"REPO_CONTEXT_LIGHT": contextOrNote(context),
		"REPO_METRICS_JSON":  toJSON(metrics),
	})
}
