// Package convo turns the guided contact-form transcript into structured
// fields. The frontend walks visitors through a fixed set of prompts, so
// extraction is plain substring matching against the prompt texts.
package convo

import "strings"

// Turn is one entry of the question/answer transcript.
type Turn struct {
	Type string `json:"type"` // "question" or "answer"
	Text string `json:"text"`
}

// Info carries whatever the transcript yielded. Empty string means the
// visitor never reached (or skipped) that prompt.
type Info struct {
	Topic     string
	Challenge string
	Obstacle  string
	Name      string
	Email     string
}

// Marker phrases are matched case-sensitively against question turns. They
// must stay in sync with the frontend prompt copy.
const (
	markerTopic     = "WHAT BRINGS YOU HERE"
	markerChallenge = "WHAT RULE DO YOU WANT TO BREAK"
	markerObstacle  = "WHAT'S HOLDING YOU BACK"
	markerName      = "WHAT SHOULD WE CALL YOU"
	markerEmail     = "WHAT'S YOUR EMAIL"
	markerContact   = "HOW SHOULD WE CONTACT YOU"
)

// Extract scans the transcript once, front to back. A recognized question
// is paired with the immediately following answer turn; a question with no
// trailing answer leaves its field empty. Extract never fails, whatever the
// transcript looks like.
func Extract(turns []Turn) Info {
	var info Info
	for i, turn := range turns {
		if turn.Type != "question" {
			continue
		}
		answer, ok := answerAfter(turns, i)
		if !ok {
			continue
		}
		switch {
		case strings.Contains(turn.Text, markerTopic):
			info.Topic = answer
		case strings.Contains(turn.Text, markerChallenge):
			info.Challenge = answer
		case strings.Contains(turn.Text, markerObstacle):
			info.Obstacle = answer
		case strings.Contains(turn.Text, markerName):
			info.Name = answer
		case strings.Contains(turn.Text, markerEmail), strings.Contains(turn.Text, markerContact):
			info.Email = answer
		}
	}
	return info
}

func answerAfter(turns []Turn, i int) (string, bool) {
	if i+1 >= len(turns) || turns[i+1].Type != "answer" {
		return "", false
	}
	return strings.TrimSpace(turns[i+1].Text), true
}
