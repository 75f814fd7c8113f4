// SPDX-License-Identifier: AGPL-3.0-only
package extract

// CalendarEvent is an event mentioned in free text.
type CalendarEvent struct {
	Name         string   `json:"name" description:"The name of the event"`
	Date         string   `json:"date" description:"The date of the event"`
	Participants []string `json:"participants" description:"List of participants attending the event"`
}

// LLMConfidence is the model's own account of how sure it is.
type LLMConfidence struct {
	Confidence       float64  `json:"confidence" description:"Confidence level in the prediction. Highest confidence - when all values are clearly mentioned in the input. More the assumptions made by the model, lower the confidence. Value between 0 lowest to 100 highest."`
	ConfidenceReason string   `json:"confidence_reason" description:"Reasoning behind the confidence level."`
	Assumptions      []string `json:"assumptions" description:"List of assumptions made by the model."`
}

// CalendarEventWithConfidence is a CalendarEvent plus confidence information.
type CalendarEventWithConfidence struct {
	CalendarEvent
	LLMConfidence LLMConfidence `json:"llm_confidence" description:"Confidence information from the model"`
}
