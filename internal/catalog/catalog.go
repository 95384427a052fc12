package catalog

import "fmt"

// SentinelTopic is the picker entry that asks the user to name their own topic.
const SentinelTopic = "Other"

// knownTopics lists the curated topics in display order.
var knownTopics = []string{
	"EU AI Act",
	"GDPR",
	"Cybersecurity",
	"Maatschappelijke agenda 2023-2027",
}

var curated = map[string][]string{
	"EU AI Act": {
		"What is the main goal of the EU AI Act, and which AI systems does it apply to?",
		"Can you explain the difference between high-risk and limited-risk AI systems under the EU AI Act?",
		"What obligations does the EU AI Act place on organizations that deploy AI systems?",
	},
	"GDPR": {
		"What does GDPR stand for, and what is its main purpose?",
		"Can you name the lawful bases for processing personal data under the GDPR?",
		"What should you do if you discover a personal data breach at work?",
	},
	"Cybersecurity": {
		"What are the most common ways attackers try to gain access to company systems?",
		"How do you recognize a phishing email, and what should you do when you receive one?",
		"Why is multi-factor authentication important, and where should it be used?",
	},
	"Maatschappelijke agenda 2023-2027": {
		"What are the main themes of the Maatschappelijke agenda 2023-2027?",
		"How does the Maatschappelijke agenda 2023-2027 relate to your daily work?",
		"Which goals of the Maatschappelijke agenda 2023-2027 do you find most challenging, and why?",
	},
}

var genericTemplates = []string{
	"What do you know about %s?",
	"Can you describe a situation where %s was relevant in your work?",
	"What would you like to learn next about %s?",
}

// KnownTopics returns the curated topic names in display order.
// The returned slice is a copy; callers may modify it freely.
func KnownTopics() []string {
	out := make([]string, len(knownTopics))
	copy(out, knownTopics)
	return out
}

// QuestionsFor returns the ordered question sequence for a topic.
// Curated topics get their fixed set, the sentinel topic gets a single
// clarification question, and any other string gets generic questions with
// the topic name substituted in. The result is always non-empty and always
// a fresh slice, so an in-flight session's snapshot is never shared.
func QuestionsFor(topic string) []string {
	if topic == SentinelTopic {
		return []string{"What topic do you want to evaluate your knowledge of?"}
	}
	if qs, ok := curated[topic]; ok {
		out := make([]string, len(qs))
		copy(out, qs)
		return out
	}
	out := make([]string, len(genericTemplates))
	for i, tmpl := range genericTemplates {
		out[i] = fmt.Sprintf(tmpl, topic)
	}
	return out
}
