// Package prompt builds the phishing-analysis prompt shared by the LLM
// analyzers and decodes their replies.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/utils"
)

// System is the instruction sent as the system role where a provider supports one
const System = "You review emails for a phishing-awareness training game. Respond only with JSON."

const analysisFormat = `Decide whether the following email is a phishing attempt.
Respond with a JSON object containing:
- is_phish: boolean (true if phishing, false if legitimate)
- confidence: number between 0 and 1 (how confident you are in your verdict)
- explanation: string (one sentence naming the strongest cue)

Email:
From: %s <%s>
Subject: %s
Links: %s
Attachments: %s
Body:
%s

Respond only with the JSON object and nothing else.`

// ErrNoJSON is returned when a reply carries no JSON object
var ErrNoJSON = errors.New("no JSON object in model reply")

// Build formats the analysis prompt; body is the already truncated message body
func Build(msg *core.Message, body string) string {
	return fmt.Sprintf(analysisFormat,
		msg.SenderName, msg.SenderEmail, msg.Subject,
		listOrNone(msg.Links), listOrNone(msg.Attachments), body)
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

type reply struct {
	IsPhish     bool    `json:"is_phish"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// Parse decodes a model reply into an Analysis, tolerating prose around the JSON
func Parse(text, model string, now time.Time) (*core.Analysis, error) {
	var r reply
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		obj, ok := utils.ExtractJSONObject(text)
		if !ok {
			return nil, ErrNoJSON
		}
		if err := json.Unmarshal([]byte(obj), &r); err != nil {
			return nil, fmt.Errorf("failed to parse model reply as JSON: %w", err)
		}
	}

	return &core.Analysis{
		IsPhish:     r.IsPhish,
		Confidence:  clamp(r.Confidence),
		Explanation: r.Explanation,
		AnalyzedAt:  now,
		ModelUsed:   model,
	}, nil
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
