// SPDX-License-Identifier: AGPL-3.0-only
package main

import "github.com/firoagni/ai-development-tutorials/internal/session"

const toolsInstruction = "Assistant is a helpful assistant that helps users get answers to questions. " +
	"Assistant has access to several tools and sometimes you may need to call multiple tools " +
	"in sequence to get answers for your users."

// buildQuestions need zero, one or several chained tool calls to answer.
var buildQuestions = []string{
	"Provide the status of last XYZ120",
	"Who triggered the last XYZ 1.2 Build?",
	"Provide the status of last build",
	"Hello how are you?",
	"Provide the status last XYZ120 and XYZ130 build",
}

var eventInputs = []string{
	"Mike will attend the Chris Rock Concert on 24 Jan 2025",
	"Vijay and Venu are going to a science fair on Friday.",
	"The project deadline is next Monday.",
	"Vijay and Venu are going to a science fair",
	"Build Team is planning a team outing first week of August",
	"My name is Agni. How are you?",
}

const fewShotInstruction = "You answer based on the pattern of the conversation."

var fewShotExamples = []session.Example{
	{User: "Hi, how are you?", Assistant: "Main accha hoon, aap kaise hain?"},
	{User: "I am fine, can you tell me something?", Assistant: "Haan, bilkul! Aapko kya jaanana hai?"},
}

const (
	seedInstruction = "You are a great storyteller."
	seedQuestion    = "Tell me a short urban legend in 3 lines"
	seedTemperature = 0.9
	seedMaxTokens   = 100
	seedValue       = 42
)

const defaultBuildReport = "dummy_build_data.json"

const analysisInstruction = `
Wrapped within <context> tags is the content of a JSON file you need to analyze.

<context>
%s
</context>

- The JSON file contains Jenkins build information under the key ` + "`results`" + `
- Each entry in the ` + "`results`" + ` array contains information about a build.
- Build status of a build can be found by checking the ` + "`build_status`" + ` key.
- Build duration (time build took to complete) can be found by checking the ` + "`build_duration`" + ` key.
- Queue time (time build spent in queue) can be found by checking the ` + "`queue_time`" + ` key.
- Build label can be found by checking the ` + "`build_label`" + ` key. When somebody ask about a build, make sure to provide the build label.
`

const analysisQuestion = "Provide Total builds and list all build statuses along their counts and percentages. " +
	"Also provide the fastest and the slowest build along with their build duration. " +
	"Also provide the build labels with the longest and shortest queue time. Provide durations too. " +
	"Also provide the average build and queue duration. "
