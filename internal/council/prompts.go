package council

import (
	"fmt"
	"strings"
)

const (
	placeholderLead      = "Unable to make decision."
	placeholderSynthesis = "Unable to synthesize responses."
	placeholderChairman  = "Error: Unable to generate final synthesis."
)

// joinResponses renders a round for a prompt, one block per responder.
func joinResponses(responses []ModelResponse, heading func(model string) string) string {
	blocks := make([]string, 0, len(responses))
	for _, r := range responses {
		blocks = append(blocks, fmt.Sprintf("**%s:**\n%s", heading(r.Model), r.Response))
	}
	return strings.Join(blocks, "\n\n")
}

func draftPrompt(query string) string {
	return fmt.Sprintf(`You are the first specialist in an assembly line team. Your job is to provide an initial response/draft to the following question.

**Question:** %s

Provide a clear, well-structured initial response that will be reviewed and refined by specialists after you:`, query)
}

func reviewPrompt(query, draft string) string {
	return fmt.Sprintf(`You are the second specialist in an assembly line team. Your job is to review and expand on the work of the previous specialist.

**Original Question:** %s

**Previous Specialist's Draft:**
%s

Your task is to:
1. Review their work for accuracy and completeness
2. Identify any gaps or areas that need more detail
3. Expand and improve their response with additional insights and structure
4. Build upon their foundation rather than starting over

Please provide your enhanced version:`, query, draft)
}

func polishPrompt(query, current string) string {
	return fmt.Sprintf(`You are the final specialist in an assembly line team. Your job is to polish and finalize the work.

**Original Question:** %s

**Current Version (from previous specialists):**
%s

Your task is to:
1. Review the current work for clarity and coherence
2. Fix any issues with grammar, structure, or flow
3. Ensure all points are well-articulated and professional
4. Add final touches for polish and elegance
5. Make sure the response fully answers the original question

Please provide the final, polished version:`, query, current)
}

func leadPrompt(query string, juniors []ModelResponse) string {
	context := joinResponses(juniors, func(m string) string { return "Junior Agent (" + m + ")" })
	return fmt.Sprintf(`You are the Lead Agent of a professional council. Multiple junior agents have provided their responses and recommendations to the following question:

**Question:** %s

**Responses from Junior Agents:**
%s

As the Lead Agent, your responsibility is to:
1. Evaluate the quality and accuracy of each junior agent's response
2. Identify the most reliable and insightful recommendation
3. Make a definitive final decision based on professional judgment
4. Clearly state your rationale for the decision

Please provide your authoritative final decision and recommendation:`, query, context)
}

func refinePrompt(query string, previous []ModelResponse) string {
	context := joinResponses(previous, func(m string) string { return m })
	return fmt.Sprintf(`You are part of a collaborative council discussing the following question:

**Question:** %s

**Previous responses from other council members:**
%s

Based on the responses above, please provide your refined or alternative perspective on this question.
Consider what others have said, add your insights, or refine your approach based on their input.
Aim to either build upon the best ideas or offer a genuinely different perspective that adds value.`, query, context)
}

func facilitatorPrompt(query string, final []ModelResponse) string {
	context := joinResponses(final, func(m string) string { return m })
	return fmt.Sprintf(`You are the facilitator of a Round Table council that has been discussing the following question:

**Question:** %s

**Final perspectives from all council members:**
%s

Please synthesize all of these perspectives into a comprehensive, well-rounded final answer that captures the best insights from the entire discussion.
The answer should integrate the different viewpoints and create a cohesive response.`, query, context)
}

// rankingPrompt shows the stage 1 answers under their labels only.
func rankingPrompt(query string, labeled []labeledResponse) string {
	blocks := make([]string, 0, len(labeled))
	for _, l := range labeled {
		blocks = append(blocks, fmt.Sprintf("%s:\n%s", l.Label, l.Response))
	}
	return fmt.Sprintf(`You are evaluating different responses to the following question:

Question: %s

Here are the responses from different models (anonymized):

%s

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`, query, strings.Join(blocks, "\n\n"))
}

func chairmanPrompt(query string, labeled []labeledResponse, rankings []Ranking) string {
	answers := make([]string, 0, len(labeled))
	for _, l := range labeled {
		answers = append(answers, fmt.Sprintf("%s (model: %s):\n%s", l.Label, l.Model, l.Response))
	}
	evaluations := make([]string, 0, len(rankings))
	for _, r := range rankings {
		evaluations = append(evaluations, fmt.Sprintf("Evaluator %s:\n%s", r.Model, r.Ranking))
	}
	return fmt.Sprintf(`You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses.

Original Question: %s

STAGE 1 - Individual Responses:
%s

STAGE 2 - Peer Rankings:
%s

Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`,
		query, strings.Join(answers, "\n\n"), strings.Join(evaluations, "\n\n"))
}

func titlePrompt(query string) string {
	return fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, query)
}
