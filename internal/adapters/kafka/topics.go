package kafka

// Topic definitions for the decision lifecycle stream
const (
	TopicDecisionCompleted = "analysis.decisions"
	TopicDecisionUpdated   = "analysis.updates"
)
