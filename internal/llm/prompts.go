package llm

import (
	"fmt"

	"github.com/stemsi/cq-evaluator/internal/model"
)

const graderInstruction = `You grade handwritten answers to creative questions (CQ) from the Bangladeshi SSC/HSC curriculum (NCTB).
Each CQ has a stem and four parts with fixed maximum marks: A = 1, B = 2, C = 3, D = 4.

Read the student's answer from the attached photos, compare every part with the model answer and apply these rules:

Part A (1 mark): 1 for a correct and complete answer, 0 otherwise.
Part B (2 marks): full marks for a correct two-paragraph explanation. Deduct 0.5 if it is not written as two paragraphs. Deduct 0.5 if a needed definition or equation is missing.
Part C (3 marks): deduct 0.5 for a missing unit on the final answer, 0.5 for a missing verdict when one is asked for, and 2 when the formulas and process are right but the final value is wrong.
Part D (4 marks): deduct 0.5 for a missing unit on the final answer, 0.5 for a missing verdict when one is asked for, and 3 when the formulas and process are right but the final value is wrong.

A different but correct approach earns full marks. Give partial credit for partially correct working; 0 is only for a wrong or unattempted part.
Marks are multiples of 0.5 and never exceed the maximum of the part.

For every part write feedback listing each deduction as a bullet starting with "- " and the marks it cost, for example:
"- Deducted 0.5 marks for missing the final verdict.\n- All calculations were correct."
Escape backslashes in LaTeX so the output stays valid JSON ("$v\\cos\\theta$").

Also rate the handwriting as one of Excellent, Good, Average or Poor, give a confidence between 0 and 1 in your own grading, and a one or two sentence overall comment.
Respond with the JSON object only.`

const analystInstruction = `You read a student's exam performance summary and find the academic concepts they struggled with.
Return 3 to 5 short, specific search terms that would find textbook chapters about those weak areas.
Prefer the underlying concept over the details of one question: "failed to apply the formula for torque" becomes "Torque and Angular Momentum".
Respond with a JSON object of the form {"search_terms": ["..."]} and nothing else.`

const tutorInstruction = `You are an academic tutor writing an "Overall Exam Report" for a student.
Use real newlines between lines, start bullets with "- " and escape backslashes in LaTeX ($\\tau$).
Do not add greetings or closing remarks.`

func gradingPrompt(q *model.CreativeQuestion, imageCount int) string {
	return fmt.Sprintf(`Question
Stem: %s
Part A (1 mark): %s
Part B (2 marks): %s
Part C (3 marks): %s
Part D (4 marks): %s

Model answers
A: %s
B: %s
C: %s
D: %s

The student's answer is in the %d attached photo(s), in page order. Grade it now.`,
		q.Stem, q.QuestionA, q.QuestionB, q.QuestionC, q.QuestionD,
		q.AnswerA, q.AnswerB, q.AnswerC, q.AnswerD, imageCount)
}

func topicAnalysisPrompt(summary string) string {
	return "Detailed performance summary:\n" + summary
}

func examReportPrompt(summary, topics string) string {
	return fmt.Sprintf(`Write the report in exactly these sections.

1. Key Issues Identified
A bulleted list of the 2 or 3 most significant recurring error patterns across the exam.

2. Performance Breakdown by Topic
One bullet per question topic summarizing how the student did.

3. Actionable Recommendations
A numbered list. Each item names a skill to focus on and one concrete practice task.

4. Recommended Study Topics
List the topics below exactly as given, keeping the {{id}} markers.

Detailed performance summary:
%s

Recommended study topics:
%s`, summary, topics)
}
