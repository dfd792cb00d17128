package model

import "time"

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	Lang          string        // default UI language for advisory messages (en, id)
	PromptVariant string        // grading prompt variant (strict, standard, lenient)
	RemoteTimeout time.Duration // upper bound for each generator/reviewer/search call
	MaxFeedback   int           // cap on pros/cons/red_flags items kept from a review
}
